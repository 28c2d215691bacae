package cluster

import (
	"errors"
	"slices"
	"testing"
)

func TestPeerDirectory(t *testing.T) {
	dir, err := NewPeerDirectory(2, map[int]Peer{
		3: &stubPeer{id: 3},
		1: &stubPeer{id: 1},
		2: nil,
		4: &stubPeer{id: 4},
	})
	if err != nil {
		t.Fatalf("NewPeerDirectory failed: %v", err)
	}

	if dir.Self() != 2 || dir.Size() != 4 {
		t.Errorf("Expected self 2 of 4, got %d of %d", dir.Self(), dir.Size())
	}
	if dir.Majority() != 2 {
		t.Errorf("Expected majority 2, got %d", dir.Majority())
	}
	if got := dir.IDs(); !slices.Equal(got, []int{1, 2, 3, 4}) {
		t.Errorf("IDs() = %v", got)
	}
	if got := dir.Others(); !slices.Equal(got, []int{1, 3, 4}) {
		t.Errorf("Others() = %v", got)
	}
	if !dir.Has(4) || dir.Has(5) {
		t.Error("Has() gave the wrong answer")
	}
	if dir.Peer(2) != nil || dir.Peer(3) == nil || dir.OneWay(3) == nil {
		t.Error("Expected handles for others and none for self")
	}

	ids := dir.IDs()
	ids[0] = 99
	if dir.IDs()[0] != 1 {
		t.Error("IDs() must return a copy")
	}
}

func TestPeerDirectoryMajority(t *testing.T) {
	for size, want := range map[int]int{1: 1, 2: 1, 3: 2, 4: 2, 5: 3} {
		peers := map[int]Peer{0: nil}
		for id := 1; id < size; id++ {
			peers[id] = &stubPeer{id: id}
		}
		dir, err := NewPeerDirectory(0, peers)
		if err != nil {
			t.Fatalf("NewPeerDirectory failed: %v", err)
		}
		if got := dir.Majority(); got != want {
			t.Errorf("Majority() of %d = %d, want %d", size, got, want)
		}
	}
}

func TestPeerDirectoryErrors(t *testing.T) {
	if _, err := NewPeerDirectory(1, map[int]Peer{2: &stubPeer{}}); !errors.Is(err, ErrSelfNotInDirectory) {
		t.Errorf("Expected ErrSelfNotInDirectory, got %v", err)
	}
	if _, err := NewPeerDirectory(1, map[int]Peer{1: nil, 2: nil}); !errors.Is(err, ErrNilPeer) {
		t.Errorf("Expected ErrNilPeer, got %v", err)
	}
}
