package mongoenv

import (
	"errors"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/roach88/unifiedrunner/internal/expect"
)

// ObserveError classifies a driver error for error expectations. Command,
// write and bulk write failures are server errors carrying the server's
// code and labels; anything else is a client error.
func ObserveError(err error) *expect.ObservedError {
	if err == nil {
		return nil
	}

	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		return &expect.ObservedError{
			Server:    true,
			Text:      cmdErr.Message,
			ErrorCode: cmdErr.Code,
			HasCode:   cmdErr.Code != 0,
			Name:      cmdErr.Name,
			Labels:    cmdErr.Labels,
			Err:       err,
		}
	}

	var writeErr mongo.WriteException
	if errors.As(err, &writeErr) {
		var first *mongo.WriteError
		if len(writeErr.WriteErrors) > 0 {
			first = &writeErr.WriteErrors[0]
		}
		return fromWrite(err, first, writeErr.WriteConcernError, writeErr.Labels)
	}

	var bulkErr mongo.BulkWriteException
	if errors.As(err, &bulkErr) {
		var first *mongo.WriteError
		if len(bulkErr.WriteErrors) > 0 {
			first = &bulkErr.WriteErrors[0].WriteError
		}
		return fromWrite(err, first, bulkErr.WriteConcernError, bulkErr.Labels)
	}

	return &expect.ObservedError{Text: err.Error(), Err: err}
}

func fromWrite(err error, we *mongo.WriteError, wce *mongo.WriteConcernError, labels []string) *expect.ObservedError {
	oe := &expect.ObservedError{Server: true, Labels: labels, Err: err, Text: err.Error()}
	switch {
	case we != nil:
		oe.Text = we.Message
		oe.ErrorCode = int32(we.Code)
		oe.HasCode = true
		if name, ok := codeNames[oe.ErrorCode]; ok {
			oe.Name = name
		}
	case wce != nil:
		oe.Text = wce.Message
		oe.ErrorCode = int32(wce.Code)
		oe.HasCode = true
		oe.Name = wce.Name
	}
	return oe
}

// codeNames covers write error codes whose name tests assert on. Write
// errors carry no codeName field, unlike command errors.
var codeNames = map[int32]string{
	11000: "DuplicateKey",
	112:   "WriteConflict",
	121:   "DocumentValidationFailure",
	50:    "MaxTimeMSExpired",
	64:    "WriteConcernFailed",
}
