package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/dd0wney/cluso-pubsub/pkg/auth"
)

var (
	ErrDuplicatePeer = errors.New("peer id listed more than once")
	ErrSelfMissing   = errors.New("node id not present in peers")
	ErrDuplicateAddr = errors.New("address used by more than one peer")
)

// validate is a singleton validator instance
var validate = validator.New()

// Validate checks struct constraints and then the cross-field rules
// struct tags cannot express.
func (f *File) Validate() error {
	if err := validate.Struct(f); err != nil {
		return formatValidationError(err)
	}

	ids := make(map[int]struct{}, len(f.Peers))
	addrs := make(map[string]int, 2*len(f.Peers))
	for _, p := range f.Peers {
		if _, dup := ids[p.ID]; dup {
			return fmt.Errorf("peers: %w: %d", ErrDuplicatePeer, p.ID)
		}
		ids[p.ID] = struct{}{}

		for _, a := range []string{p.RPC, p.OneWay} {
			if owner, dup := addrs[a]; dup {
				return fmt.Errorf("peers: %w: %s (ids %d and %d)", ErrDuplicateAddr, a, owner, p.ID)
			}
			addrs[a] = p.ID
		}
	}
	if _, ok := ids[f.Node.ID]; !ok {
		return fmt.Errorf("node.id %d: %w", f.Node.ID, ErrSelfMissing)
	}

	for i, h := range f.Auth.APIKeys {
		if err := auth.CheckKeyHash(h); err != nil {
			return fmt.Errorf("auth.api_keys[%d]: %w", i, err)
		}
	}
	return nil
}

func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}

	// Report the first failure with its full path
	for _, e := range validationErrs {
		field := e.Namespace()
		switch e.Tag() {
		case "required":
			return fmt.Errorf("%s: field is required", field)
		case "min", "gte":
			return fmt.Errorf("%s: must be at least %s", field, e.Param())
		case "max", "lte":
			return fmt.Errorf("%s: must not exceed %s", field, e.Param())
		case "oneof":
			return fmt.Errorf("%s: must be one of [%s]", field, e.Param())
		default:
			return fmt.Errorf("%s: validation failed (%s)", field, e.Tag())
		}
	}
	return err
}
