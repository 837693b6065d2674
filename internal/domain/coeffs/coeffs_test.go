package coeffs_test

import (
	"errors"
	"testing"

	"github.com/okian/pacer/internal/domain/coeffs"
	. "github.com/smartystreets/goconvey/convey"
)

func TestDefault(t *testing.T) {
	Convey("Given the reference coefficients", t, func() {
		c := coeffs.Default()

		Convey("Then they validate", func() {
			So(c.Validate(), ShouldBeNil)
		})

		Convey("Then improvements are trusted more than declines at every tier", func() {
			for _, tier := range []string{"low", "medium", "high"} {
				So(c.Baseline.Improve[tier], ShouldBeGreaterThan, c.Baseline.Decline[tier])
			}
		})

		Convey("Then each call returns an independent copy", func() {
			c.Load.TypeFactors["easy"] = 99
			So(coeffs.Default().Load.TypeFactors["easy"], ShouldEqual, 1.0)
		})
	})
}

func TestValidate(t *testing.T) {
	Convey("Given coefficients with a broken invariant", t, func() {
		cases := map[string]func(*coeffs.Coefficients){
			"acute longer than chronic": func(c *coeffs.Coefficients) { c.Load.AcuteDays = 50 },
			"overall floor above adjustment floor": func(c *coeffs.Coefficients) {
				c.Normalizer.OverallFloor = 0.9
			},
			"inverted segment distance": func(c *coeffs.Coefficients) { c.Segment.MaxDistanceMiles = 0.1 },
			"zero stride":               func(c *coeffs.Coefficients) { c.Segment.StartStep = 0 },
			"zero agreement scale":      func(c *coeffs.Coefficients) { c.Fusion.AgreementScale = 0 },
			"decline above improve":     func(c *coeffs.Coefficients) { c.Baseline.Decline["high"] = 0.9 },
			"missing tier":              func(c *coeffs.Coefficients) { delete(c.Baseline.Improve, "medium") },
		}

		for name, mutate := range cases {
			c := coeffs.Default()
			mutate(&c)
			Convey("When "+name, func() {
				err := c.Validate()
				So(errors.Is(err, coeffs.ErrInvalidCoefficients), ShouldBeTrue)
			})
		}
	})
}
