package executor

import "github.com/nexusdb/nexus/pkg/nexuserr"

var (
	ErrQueryCancelled   = nexuserr.ErrQueryCancelled
	ErrDeadlineExceeded = nexuserr.ErrDeadlineExceeded
)

func errf(code nexuserr.Code, op, msg string) error {
	return nexuserr.New(nexuserr.KindExecute, code, op, msg)
}

func wrapf(code nexuserr.Code, op string, cause error) error {
	return nexuserr.Wrap(nexuserr.KindExecute, code, op, cause)
}
