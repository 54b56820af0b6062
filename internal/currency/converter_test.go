package currency_test

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/cardspend/internal/currency"
)

func TestCurrency(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Currency Suite")
}

var _ = Describe("Converter", func() {
	var (
		server    *httptest.Server
		requests  atomic.Int64
		rateByCur map[string]float64
		failing   bool
	)

	newConverter := func(ttl time.Duration) *currency.Converter {
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		return currency.NewConverter(currency.Config{
			APIURL:   server.URL,
			CacheTTL: ttl,
		}, logger)
	}

	BeforeEach(func() {
		requests.Store(0)
		failing = false
		rateByCur = map[string]float64{"USD": 84.25, "EUR": 91.10}
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requests.Add(1)
			if failing {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			cur := r.URL.Path[1:]
			rate, ok := rateByCur[cur]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			fmt.Fprintf(w, `{"base":%q,"rates":{"INR":%v}}`, cur, rate)
		}))
	})

	AfterEach(func() {
		server.Close()
	})

	Describe("Rate", func() {
		It("should fetch the live rate and cache it", func() {
			// Given
			conv := newConverter(time.Hour)

			// When
			first, err := conv.Rate("USD")

			// Then
			Expect(err).ToNot(HaveOccurred())
			Expect(first.StringFixed(2)).To(Equal("84.25"))
			Expect(requests.Load()).To(Equal(int64(1)))

			second, err := conv.Rate("USD")
			Expect(err).ToNot(HaveOccurred())
			Expect(second.Equal(first)).To(BeTrue())
			// Served from cache, no second call.
			Expect(requests.Load()).To(Equal(int64(1)))
		})

		It("should refetch once the cache goes stale", func() {
			conv := newConverter(time.Nanosecond)

			_, err := conv.Rate("USD")
			Expect(err).ToNot(HaveOccurred())

			rateByCur["USD"] = 85.00
			time.Sleep(time.Millisecond)

			rate, err := conv.Rate("USD")
			Expect(err).ToNot(HaveOccurred())
			Expect(rate.StringFixed(2)).To(Equal("85.00"))
			Expect(requests.Load()).To(Equal(int64(2)))
		})

		It("should fall back to the static table when the API is down", func() {
			failing = true
			conv := newConverter(time.Hour)

			rate, err := conv.Rate("USD")

			Expect(err).ToNot(HaveOccurred())
			Expect(rate.StringFixed(2)).To(Equal("83.50"))
		})

		It("should return one for INR without touching the API", func() {
			conv := newConverter(time.Hour)

			rate, err := conv.Rate("INR")

			Expect(err).ToNot(HaveOccurred())
			Expect(rate.StringFixed(0)).To(Equal("1"))
			Expect(requests.Load()).To(Equal(int64(0)))
		})

		It("should error for a currency nobody knows", func() {
			failing = true
			conv := newConverter(time.Hour)

			_, err := conv.Rate("XYZ")

			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("no exchange rate"))
		})
	})

	Describe("Refresh", func() {
		It("should warm the cache for every fetchable currency", func() {
			conv := newConverter(time.Hour)

			conv.Refresh([]string{"USD", "EUR", "INR"})

			// Two live fetches; INR is constant.
			Expect(requests.Load()).To(Equal(int64(2)))

			rate, err := conv.Rate("EUR")
			Expect(err).ToNot(HaveOccurred())
			Expect(rate.StringFixed(2)).To(Equal("91.10"))
			Expect(requests.Load()).To(Equal(int64(2)))
		})

		It("should keep the old snapshot when every fetch fails", func() {
			conv := newConverter(time.Hour)
			_, err := conv.Rate("USD")
			Expect(err).ToNot(HaveOccurred())

			failing = true
			conv.Refresh([]string{"USD", "EUR"})

			rate, err := conv.Rate("USD")
			Expect(err).ToNot(HaveOccurred())
			Expect(rate.StringFixed(2)).To(Equal("84.25"))
		})
	})
})
