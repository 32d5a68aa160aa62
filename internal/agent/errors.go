package agent

import (
	"errors"
	"fmt"

	"github.com/danmuck/fibctl/internal/protocol"
)

// RemoteError is the declared agent exception (FbossBaseError) carried in
// field 1 of a reply.
type RemoteError struct {
	Method  string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("agent: %s failed: %s", e.Method, e.Message)
}

// IsRemote reports whether err was raised by the agent rather than by the
// connection or the codec.
func IsRemote(err error) bool {
	var re *RemoteError
	return errors.As(err, &re) || protocol.IsRemote(err)
}

func readRemoteError(p protocol.Protocol, method string) (*RemoteError, error) {
	re := &RemoteError{Method: method}
	_, err := protocol.ReadStruct(p, func(f protocol.FieldHeader) (bool, error) {
		if f.ID != errMessage || f.Type != protocol.String {
			return false, nil
		}
		msg, err := p.ReadString()
		re.Message = msg
		return true, err
	})
	if err != nil {
		return nil, err
	}
	return re, nil
}
