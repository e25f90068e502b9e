/*
 * MIT License
 *
 * Copyright (c) 2024 Nicolas JUHEL
 */

package errs_test

import (
	"errors"
	"testing"

	liberr "github.com/nabbar/reactord/errs"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestErrs(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "errs suite")
}

var _ = Describe("Error", func() {
	It("reports its kind through Is", func() {
		e := liberr.New(liberr.KindProtocol, liberr.CodeBadPreface, "bad preface")
		Expect(liberr.Is(e, liberr.KindProtocol)).To(BeTrue())
		Expect(liberr.Is(e, liberr.KindResource)).To(BeFalse())
	})

	It("Wrap returns nil for a nil cause", func() {
		Expect(liberr.Wrap(liberr.KindResource, liberr.CodeRecvOverflow, "x", nil)).To(BeNil())
	})

	It("unwraps to the original cause", func() {
		cause := errors.New("boom")
		e := liberr.Wrap(liberr.KindHandler, liberr.CodeHandlerPanic, "handler panicked", cause)
		Expect(errors.Unwrap(e)).To(Equal(cause))
		Expect(errors.Is(e, cause)).To(BeTrue())
	})

	It("classifies every non-transient kind as Fatal", func() {
		for _, k := range []liberr.Kind{
			liberr.KindPeerClose, liberr.KindProtocol, liberr.KindResource,
			liberr.KindHandler, liberr.KindConfiguration,
		} {
			Expect(liberr.Fatal(liberr.New(k, "x", "x"))).To(BeTrue())
		}
		Expect(liberr.Fatal(liberr.New(liberr.KindTransient, "x", "x"))).To(BeFalse())
		Expect(liberr.Fatal(nil)).To(BeFalse())
	})
})
