package frame

import (
	"fmt"

	"github.com/google/uuid"
)

// --------------------------------------------------------------------------
// Wire Error Codes
// --------------------------------------------------------------------------

// ErrorCode is the wire error code carried in the first int of an ERROR
// frame body.
type ErrorCode int32

const (
	ErrCodeServer        ErrorCode = 0x0000
	ErrCodeProtocol      ErrorCode = 0x000A
	ErrCodeCredentials   ErrorCode = 0x0100
	ErrCodeUnavailable   ErrorCode = 0x1000
	ErrCodeOverloaded    ErrorCode = 0x1001
	ErrCodeBootstrapping ErrorCode = 0x1002
	ErrCodeTruncate      ErrorCode = 0x1003
	ErrCodeWriteTimeout  ErrorCode = 0x1100
	ErrCodeReadTimeout   ErrorCode = 0x1200
	ErrCodeSyntax        ErrorCode = 0x2000
	ErrCodeUnauthorized  ErrorCode = 0x2100
	ErrCodeInvalid       ErrorCode = 0x2200
	ErrCodeConfig        ErrorCode = 0x2300
	ErrCodeAlreadyExists ErrorCode = 0x2400
	ErrCodeUnprepared    ErrorCode = 0x2500
)

// --------------------------------------------------------------------------
// Typed Error Hierarchy
// --------------------------------------------------------------------------

// RequestError is the base of the protocol error taxonomy. Every variant
// carries the originating wire error code and the optional tracing id for
// cross-referencing server-side trace logs.
type RequestError struct {
	Code      ErrorCode
	Message   string
	TracingID *uuid.UUID
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("server error 0x%04x: %s", int32(e.Code), e.Message)
}

// ReadTimeoutError reports a coordinator-side read timeout. DataPresent
// signals whether at least one replica held the requested data: if false a
// retry is futile regardless of consistency, if true a retry may succeed.
type ReadTimeoutError struct {
	RequestError
	Consistency Consistency
	Received    int32
	BlockFor    int32
	DataPresent bool
}

func (e *ReadTimeoutError) Error() string {
	return fmt.Sprintf("read timeout at %s: received %d of %d required replies (data present: %t): %s",
		e.Consistency, e.Received, e.BlockFor, e.DataPresent, e.Message)
}

// WriteTimeoutError reports a coordinator-side write timeout.
type WriteTimeoutError struct {
	RequestError
	Consistency Consistency
	Received    int32
	BlockFor    int32
	WriteType   string
}

func (e *WriteTimeoutError) Error() string {
	return fmt.Sprintf("write timeout at %s during %s: received %d of %d required acks: %s",
		e.Consistency, e.WriteType, e.Received, e.BlockFor, e.Message)
}

// UnavailableError reports that too few replicas were alive to even attempt
// the operation at the requested consistency.
type UnavailableError struct {
	RequestError
	Consistency Consistency
	Required    int32
	Alive       int32
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("unavailable at %s: %d replicas required, %d alive: %s",
		e.Consistency, e.Required, e.Alive, e.Message)
}

// AlreadyExistsError reports an attempt to create an existing keyspace or
// table.
type AlreadyExistsError struct {
	RequestError
	Keyspace string
	Table    string
}

func (e *AlreadyExistsError) Error() string {
	if e.Table == "" {
		return fmt.Sprintf("keyspace %q already exists: %s", e.Keyspace, e.Message)
	}
	return fmt.Sprintf("table %q.%q already exists: %s", e.Keyspace, e.Table, e.Message)
}

// UnpreparedError reports that the server rejected an unknown prepared
// statement id. The caller may re-prepare and retry once.
type UnpreparedError struct {
	RequestError
	StatementID []byte
}

func (e *UnpreparedError) Error() string {
	return fmt.Sprintf("unprepared statement 0x%x: %s", e.StatementID, e.Message)
}

// --------------------------------------------------------------------------
// Error Frame Body Decoding
// --------------------------------------------------------------------------

// parseErrorDetail decodes the code-specific remainder of an ERROR frame
// body into exactly one typed variant. Codes without extra payload map to
// the plain RequestError.
func parseErrorDetail(fr *FrameReader, code ErrorCode, msg string, tracingID *uuid.UUID) (error, error) {
	base := RequestError{Code: code, Message: msg, TracingID: tracingID}

	switch code {
	case ErrCodeReadTimeout:
		cl, err := fr.ReadConsistency()
		if err != nil {
			return nil, err
		}
		received, err := fr.ReadInt()
		if err != nil {
			return nil, err
		}
		blockFor, err := fr.ReadInt()
		if err != nil {
			return nil, err
		}
		dataPresent, err := fr.ReadByte()
		if err != nil {
			return nil, err
		}
		return &ReadTimeoutError{
			RequestError: base,
			Consistency:  cl,
			Received:     received,
			BlockFor:     blockFor,
			DataPresent:  dataPresent != 0,
		}, nil

	case ErrCodeWriteTimeout:
		cl, err := fr.ReadConsistency()
		if err != nil {
			return nil, err
		}
		received, err := fr.ReadInt()
		if err != nil {
			return nil, err
		}
		blockFor, err := fr.ReadInt()
		if err != nil {
			return nil, err
		}
		writeType, err := fr.ReadString()
		if err != nil {
			return nil, err
		}
		return &WriteTimeoutError{
			RequestError: base,
			Consistency:  cl,
			Received:     received,
			BlockFor:     blockFor,
			WriteType:    writeType,
		}, nil

	case ErrCodeUnavailable:
		cl, err := fr.ReadConsistency()
		if err != nil {
			return nil, err
		}
		required, err := fr.ReadInt()
		if err != nil {
			return nil, err
		}
		alive, err := fr.ReadInt()
		if err != nil {
			return nil, err
		}
		return &UnavailableError{
			RequestError: base,
			Consistency:  cl,
			Required:     required,
			Alive:        alive,
		}, nil

	case ErrCodeAlreadyExists:
		ks, err := fr.ReadString()
		if err != nil {
			return nil, err
		}
		table, err := fr.ReadString()
		if err != nil {
			return nil, err
		}
		return &AlreadyExistsError{
			RequestError: base,
			Keyspace:     ks,
			Table:        table,
		}, nil

	case ErrCodeUnprepared:
		id, err := fr.ReadShortBytes()
		if err != nil {
			return nil, err
		}
		return &UnpreparedError{
			RequestError: base,
			StatementID:  id,
		}, nil

	default:
		return &base, nil
	}
}
