package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/suite"
)

type ErrorTestSuite struct {
	suite.Suite
}

func TestErrorSuite(t *testing.T) {
	suite.Run(t, new(ErrorTestSuite))
}

func (suite *ErrorTestSuite) TestNewError() {
	err := New(ErrCodeInvalidParameter, "invalid parameter")
	suite.NotNil(err)
	suite.Equal(ErrCodeInvalidParameter, err.Code)
	suite.Equal("invalid parameter", err.Message)
	suite.Nil(err.Cause)
}

func (suite *ErrorTestSuite) TestNewfError() {
	err := Newf(ErrCodeSecurityNotFound, "security %s is not registered", "BTCUSDT")
	suite.NotNil(err)
	suite.Equal(ErrCodeSecurityNotFound, err.Code)
	suite.Equal("security BTCUSDT is not registered", err.Message)
	suite.Nil(err.Cause)
}

func (suite *ErrorTestSuite) TestWrapError() {
	cause := errors.New("underlying error")
	err := Wrap(ErrCodeCommunication, "failed to submit order", cause)
	suite.NotNil(err)
	suite.Equal(ErrCodeCommunication, err.Code)
	suite.Equal("failed to submit order", err.Message)
	suite.Equal(cause, err.Cause)
}

func (suite *ErrorTestSuite) TestWrapfError() {
	cause := errors.New("underlying error")
	err := Wrapf(ErrCodeOrderUnknown, cause, "failed to cancel order %s", "abc")
	suite.NotNil(err)
	suite.Equal(ErrCodeOrderUnknown, err.Code)
	suite.Equal("failed to cancel order abc", err.Message)
	suite.Equal(cause, err.Cause)
}

func (suite *ErrorTestSuite) TestErrorString() {
	err := New(ErrCodeInvalidParameter, "invalid parameter")
	suite.Equal("[100] invalid parameter", err.Error())
}

func (suite *ErrorTestSuite) TestErrorStringWithCause() {
	cause := errors.New("underlying error")
	err := Wrap(ErrCodeOrderFailed, "order rejected", cause)
	suite.Equal("[300] order rejected: underlying error", err.Error())
}

func (suite *ErrorTestSuite) TestUnwrap() {
	cause := errors.New("underlying error")
	err := Wrap(ErrCodeOrderFailed, "order rejected", cause)
	suite.Equal(cause, err.Unwrap())
}

func (suite *ErrorTestSuite) TestUnwrapNil() {
	err := New(ErrCodeInvalidParameter, "invalid parameter")
	suite.Nil(err.Unwrap())
}

func (suite *ErrorTestSuite) TestGetCode() {
	err := New(ErrCodeNotImplemented, "handler is not implemented")
	suite.Equal(ErrCodeNotImplemented, GetCode(err))
}

func (suite *ErrorTestSuite) TestGetCodeFromWrapped() {
	cause := New(ErrCodeOrderUnknown, "order is unknown")
	err := Wrap(ErrCodePositionState, "failed to cancel", cause)
	// GetCode should return the outermost error's code
	suite.Equal(ErrCodePositionState, GetCode(err))
}

func (suite *ErrorTestSuite) TestGetCodeFromStandardError() {
	err := errors.New("standard error")
	suite.Equal(ErrCodeUnknown, GetCode(err))
}

func (suite *ErrorTestSuite) TestHasCode() {
	err := New(ErrCodeCommunication, "connection reset")
	suite.True(HasCode(err, ErrCodeCommunication))
	suite.False(HasCode(err, ErrCodeOrderUnknown))
}

func (suite *ErrorTestSuite) TestIsCommunication() {
	suite.True(IsCommunication(New(ErrCodeCommunication, "connection reset")))
	suite.False(IsCommunication(New(ErrCodeOrderUnknown, "unknown order")))
	suite.False(IsCommunication(errors.New("standard error")))
}

func (suite *ErrorTestSuite) TestRecursiveSubscriptionError() {
	err := NewRecursiveSubscriptionError([]string{"A", "B", "A"})
	suite.Equal("recursive subscription: A -> B -> A", err.Error())
}

func (suite *ErrorTestSuite) TestIsRecursiveSubscription() {
	cycle := NewRecursiveSubscriptionError([]string{"A", "B", "A"})
	wrapped := Wrap(ErrCodeRecursiveSubscription, "cannot register subscriber", cycle)
	suite.True(IsRecursiveSubscription(wrapped))
	suite.True(IsRecursiveSubscription(fmt.Errorf("wiring: %w", wrapped)))
	suite.False(IsRecursiveSubscription(errors.New("standard error")))
}
