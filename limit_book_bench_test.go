package exchange

import (
	"fmt"
	"math/rand"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func BenchmarkLimitBookAdd(b *testing.B) {
	goprocs := runtime.GOMAXPROCS(0)

	for i := start; i < end; i += step {
		book := NewLimitBook()
		var seq atomic.Uint64

		b.Run(fmt.Sprintf("goroutines-%d", i*goprocs), func(b *testing.B) {
			b.SetParallelism(i)
			b.RunParallel(func(pb *testing.PB) {
				for pb.Next() {
					id := seq.Add(1)
					side := Buy
					if id%2 == 0 {
						side = Sell
					}

					_ = book.Add(&Order{
						ID:         id,
						Symbol:     "AAPL",
						Side:       side,
						Kind:       Limit,
						Quantity:   1,
						LimitPrice: decimal.NewFromInt(int64(rand.Intn(10000) + 1)),
						CreatedAt:  time.Now(),
					})
				}
			})
		})
	}
}

func BenchmarkLimitBookPopTriggered(b *testing.B) {
	for i := 0; i < b.N; i++ {
		b.StopTimer()
		book := NewLimitBook()
		for j := 0; j < 1000; j++ {
			_ = book.Add(&Order{
				ID:         uint64(j + 1),
				Symbol:     "AAPL",
				Side:       Sell,
				Kind:       Limit,
				Quantity:   1,
				LimitPrice: decimal.NewFromInt(int64(j + 1)),
			})
		}
		b.StartTimer()

		book.PopTriggered("AAPL", decimal.NewFromInt(500))
	}
}
