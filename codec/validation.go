package codec

import tserrors "github.com/ticketbro/tablestore/errors"

// newValidation builds the exported ValidationError from the errors
// package, keeping the codec package itself free of any particular
// model/union tag (the tag is attached by model.Model.From/Decode, which
// knows it).
func newValidation(issues []string, cause error) error {
	return tserrors.NewValidation("", issues, cause)
}
