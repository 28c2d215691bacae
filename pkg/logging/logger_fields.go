package logging

import (
	"time"
)

func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

func Int64(key string, value int64) Field {
	return Field{Key: key, Value: value}
}

func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value.String()}
}

func Error(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

func Any(key string, value any) Field {
	return Field{Key: key, Value: value}
}

func Component(name string) Field {
	return String("component", name)
}

// NodeID tags the local node.
func NodeID(id int) Field {
	return Int("node_id", id)
}

// Peer tags the remote node a message is about.
func Peer(id int) Field {
	return Int("peer", id)
}

func Peers(ids []int) Field {
	return Any("peers", ids)
}

func Group(id string) Field {
	return String("group", id)
}

func Generation(g int64) Field {
	return Int64("generation", g)
}

func State(s string) Field {
	return String("state", s)
}

func Method(m string) Field {
	return String("method", m)
}

func Topic(name string) Field {
	return String("topic", name)
}

func Latency(d time.Duration) Field {
	return Duration("latency", d)
}

func Count(n int) Field {
	return Int("count", n)
}
