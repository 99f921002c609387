package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/suite"
)

// DomainErrorsSuite tests the domain error primitives.
type DomainErrorsSuite struct {
	suite.Suite
}

func TestDomainErrorsSuite(t *testing.T) {
	suite.Run(t, new(DomainErrorsSuite))
}

func (s *DomainErrorsSuite) TestErrorInterface() {
	s.Run("returns message when present", func() {
		err := &Error{Code: CodeNotFound, Message: "credential not found"}
		s.Equal("credential not found", err.Error())
	})

	s.Run("returns code when message is empty", func() {
		err := &Error{Code: CodeNotFound}
		s.Equal("NotFound", err.Error())
	})
}

func (s *DomainErrorsSuite) TestWrapPreservesCode() {
	s.Run("keeps code of wrapped domain error", func() {
		inner := New(CodeInsufficientCredits, "no credits left")
		err := Wrap(inner, CodeUnknown, "issue failed")
		s.True(HasCode(err, CodeInsufficientCredits))
		s.Equal("issue failed", err.Error())
	})

	s.Run("applies code to plain errors", func() {
		err := Wrap(errors.New("dial tcp: refused"), CodeStorageUnavailable, "upload failed")
		s.True(HasCode(err, CodeStorageUnavailable))
	})
}

func (s *DomainErrorsSuite) TestIsMatchesByCode() {
	err := fmt.Errorf("outer: %w", New(CodeConflict, "state changed"))
	s.True(errors.Is(err, &Error{Code: CodeConflict}))
	s.False(errors.Is(err, &Error{Code: CodeNotFound}))
}

func (s *DomainErrorsSuite) TestCodeOf() {
	s.Equal(CodeRenderFailed, CodeOf(New(CodeRenderFailed, "x")))
	s.Equal(CodeUnknown, CodeOf(errors.New("plain")))
}

func (s *DomainErrorsSuite) TestClassification() {
	s.True(CodeLimitReached.IsPolicy())
	s.False(CodeLimitReached.IsDependency())
	s.True(CodeStorageUnavailable.IsDependency())
	s.False(CodeConflict.IsPolicy())
}
