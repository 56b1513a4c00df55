package core

import "fmt"

// ChooseChain decides which of two replicas this node adopts. Both chains are
// validated independently; among two valid chains the longer wins and ties
// keep the local one, so a node never replaces its state without gaining
// height. When neither chain validates there is no safe choice and
// ErrNoValidChain is returned; the caller keeps its prior state.
func ChooseChain(local, remote []Block) ([]Block, error) {
	localErr := ValidateChain(local)
	remoteErr := ValidateChain(remote)

	switch {
	case localErr == nil && remoteErr == nil:
		if len(remote) > len(local) {
			return remote, nil
		}
		return local, nil
	case localErr == nil:
		return local, nil
	case remoteErr == nil:
		return remote, nil
	default:
		return nil, fmt.Errorf("%w (local: %v, remote: %v)", ErrNoValidChain, localErr, remoteErr)
	}
}
