// Command tcpsctl is a small demo and benchmark harness for the tcps
// pool: it drives a Pool with synthetic traffic so the package's
// behavior can be observed without wiring it into a real swap path.
package main

import (
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/rs/zerolog"
	kingpin "gopkg.in/alecthomas/kingpin.v2"

	"github.com/cloudfly/tcps/pageframe"
	"github.com/cloudfly/tcps/pool"
	"github.com/cloudfly/tcps/sizeclass"
)

var (
	app     = kingpin.New("tcpsctl", "Drive a tcps pool with synthetic traffic.")
	verbose = app.Flag("verbose", "Log at debug level instead of info.").Bool()
	pages   = app.Flag("max-pages", "Cap on host pages the arena will carve (0 = unbounded).").Default("0").Int()

	benchCmd     = app.Command("bench", "Run a random alloc/free/reclaim workload and report counts.")
	benchOps     = benchCmd.Flag("ops", "Number of operations to run.").Default("10000").Int()
	benchSeed    = benchCmd.Flag("seed", "PRNG seed for the workload.").Default("1").Int64()
	benchEvictPr = benchCmd.Flag("evict-failure-rate", "Fraction of evict callbacks (0..1) that report failure.").Default("0.1").Float64()

	reclaimCmd     = app.Command("reclaim", "Allocate a fixed page's worth of chunks, then reclaim it one page at a time.")
	reclaimRetries = reclaimCmd.Flag("retries", "Retry budget passed to ReclaimOne.").Default("8").Int()
)

func main() {
	switch kingpin.MustParse(app.Parse(os.Args[1:])) {
	case benchCmd.FullCommand():
		runBench()
	case reclaimCmd.FullCommand():
		runReclaim()
	}
}

func newLogger() zerolog.Logger {
	level := zerolog.InfoLevel
	if *verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(level).
		With().Timestamp().Logger()
}

func runBench() {
	logger := newLogger()
	rng := rand.New(rand.NewSource(*benchSeed))

	p, err := pool.Create(pool.Config{
		Classes:       sizeclass.Default,
		PageAllocator: pageframe.NewArena(256, *pages),
		Logger:        logger,
		Evictor: func(pp *pool.Pool, h uint64) error {
			if rng.Float64() < *benchEvictPr {
				return fmt.Errorf("tcpsctl: simulated evict failure")
			}
			pp.Free(h)
			return nil
		},
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("create pool")
	}

	var allocs, frees, reclaims, reclaimFails int
	live := make([]uint64, 0, *benchOps)

	for i := 0; i < *benchOps; i++ {
		switch rng.Intn(3) {
		case 0:
			size := 1 + rng.Intn(sizeclass.Default[0])
			h, err := p.Alloc(size, pageframe.HintDefault)
			if err != nil {
				logger.Debug().Err(err).Msg("alloc failed")
				continue
			}
			allocs++
			live = append(live, h)
		case 1:
			if len(live) == 0 {
				continue
			}
			n := rng.Intn(len(live))
			h := live[n]
			live[n] = live[len(live)-1]
			live = live[:len(live)-1]
			p.Free(h)
			frees++
		case 2:
			if err := p.ReclaimOne(4); err != nil {
				reclaimFails++
			} else {
				reclaims++
			}
		}
	}

	fmt.Printf("allocs=%d frees=%d reclaims=%d reclaim_failures=%d live=%d pool_bytes=%d\n",
		allocs, frees, reclaims, reclaimFails, len(live), p.Size())
}

func runReclaim() {
	logger := newLogger()

	p, err := pool.Create(pool.Config{
		Classes:       sizeclass.Default,
		PageAllocator: pageframe.NewArena(256, *pages),
		Logger:        logger,
		Evictor: func(pp *pool.Pool, h uint64) error {
			pp.Free(h)
			return nil
		},
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("create pool")
	}

	n := sizeclass.PageSize / sizeclass.Default[len(sizeclass.Default)-1]
	for i := 0; i < n; i++ {
		if _, err := p.Alloc(sizeclass.Default[len(sizeclass.Default)-1], pageframe.HintDefault); err != nil {
			logger.Fatal().Err(err).Msg("alloc")
		}
	}
	fmt.Printf("before reclaim: %d bytes\n", p.Size())

	for p.Size() > 0 {
		if err := p.ReclaimOne(*reclaimRetries); err != nil {
			logger.Fatal().Err(err).Msg("reclaim")
		}
		fmt.Printf("after reclaim: %d bytes\n", p.Size())
	}
}
