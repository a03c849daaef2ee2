// Copyright 2024 The go-ethereum Authors
// This file is part of go-ethereum.
//
// go-ethereum is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// go-ethereum is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with go-ethereum. If not, see <http://www.gnu.org/licenses/>.

package kernel

import "fmt"

// ErrorKind classifies why apply rejected a command. These are validation
// errors: the kernel returns them rather than mutating state, never panics.
type ErrorKind int

const (
	TenantNotFound ErrorKind = iota
	TableNotFound
	IndexNotFound
	DuplicateIdempotencyId
	InvalidCommand
	StateTransitionFailed
	TenantAlreadyExists
	TableAlreadyExists
)

func (k ErrorKind) String() string {
	switch k {
	case TenantNotFound:
		return "TenantNotFound"
	case TableNotFound:
		return "TableNotFound"
	case IndexNotFound:
		return "IndexNotFound"
	case DuplicateIdempotencyId:
		return "DuplicateIdempotencyId"
	case InvalidCommand:
		return "InvalidCommand"
	case StateTransitionFailed:
		return "StateTransitionFailed"
	case TenantAlreadyExists:
		return "TenantAlreadyExists"
	case TableAlreadyExists:
		return "TableAlreadyExists"
	default:
		return "UnknownKernelError"
	}
}

// Error is the typed error returned by Apply. It is a plain value, never a
// panic: the runtime decides what a client sees.
type Error struct {
	Kind   ErrorKind
	Detail string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func newError(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}
