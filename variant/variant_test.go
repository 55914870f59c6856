package variant_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/trieste/parley/variant"
)

var _ = Describe("variant", func() {
	Describe("Standard()", func() {
		It("describes the standard map", func() {
			v := variant.Standard()

			Expect(v.Name).To(Equal("standard"))
			Expect(v.StartPhase).To(Equal("S1901M"))
			Expect(v.SoloCentres).To(Equal(18))
			Expect(v.Powers).To(HaveLen(7))
			Expect(v.NeutralCentres).To(HaveLen(12))
		})

		It("gives every power a unit on each home centre", func() {
			for _, p := range variant.Standard().Powers {
				Expect(p.Units).To(HaveLen(len(p.Centres)))
			}
		})
	})

	Describe("PowerNames()", func() {
		It("lists powers in file order", func() {
			names := variant.Standard().PowerNames()

			Expect(names).To(HaveLen(7))
			Expect(names[0]).To(Equal("AUSTRIA"))
			Expect(names[6]).To(Equal("TURKEY"))
		})
	})

	Describe("Power()", func() {
		It("finds a power's setup by name", func() {
			p, ok := variant.Standard().Power("RUSSIA")
			Expect(ok).To(BeTrue())
			Expect(p.Centres).To(HaveLen(4))
		})

		It("reports a missing power", func() {
			_, ok := variant.Standard().Power("ATLANTIS")
			Expect(ok).To(BeFalse())
		})
	})

	Describe("Load()", func() {
		It("reads a variant definition from disk", func() {
			dir, err := os.MkdirTemp("", "variant")
			Expect(err).To(Succeed())
			defer os.RemoveAll(dir)

			path := filepath.Join(dir, "mini.toml")
			Expect(os.WriteFile(path, []byte(`
name = "mini"
start_phase = "S1901M"
solo_centres = 2

[[powers]]
name = "NORTH"
centres = ["EDI"]
units = ["F EDI"]

[[powers]]
name = "SOUTH"
centres = ["NAP"]
units = ["F NAP"]
`), 0o600)).To(Succeed())

			v, err := variant.Load(path)
			Expect(err).To(Succeed())
			Expect(v.Name).To(Equal("mini"))
			Expect(v.PowerNames()).To(Equal([]string{"NORTH", "SOUTH"}))
		})

		It("fails on a file that is missing", func() {
			_, err := variant.Load("nope.toml")
			Expect(err).To(HaveOccurred())
		})

		It("fails on a definition without powers", func() {
			dir, err := os.MkdirTemp("", "variant")
			Expect(err).To(Succeed())
			defer os.RemoveAll(dir)

			path := filepath.Join(dir, "empty.toml")
			Expect(os.WriteFile(path, []byte(`name = "empty"`), 0o600)).To(Succeed())

			_, err = variant.Load(path)
			Expect(err).To(HaveOccurred())
		})
	})
})
