package transport

import (
	"fmt"
	"sort"
	"strings"
)

var factories = map[string]func() SocketFactory{
	"nng": func() SocketFactory { return NewNNGSocketFactory() },
}

// NewSocketFactory returns the factory registered under backend. "zmq" is
// only available in binaries built with the zmq tag.
func NewSocketFactory(backend string) (SocketFactory, error) {
	if fn, ok := factories[backend]; ok {
		return fn(), nil
	}
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return nil, fmt.Errorf("unknown transport backend %q (available: %s)", backend, strings.Join(names, ", "))
}
