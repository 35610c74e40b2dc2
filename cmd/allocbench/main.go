// Command allocbench is a small console driver for exercising the
// provider/strategy combinations in this module, in the same spirit as the
// interactive console in the source this repo is built from. It isn't part
// of the library's public surface, just a way to poke at it from a
// terminal.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/vblocks/allocators"
	"github.com/vblocks/allocators/adapter"
	"github.com/vblocks/allocators/internal/ospage"
	"github.com/vblocks/allocators/provider"
	"github.com/vblocks/allocators/strategy"
)

func main() {
	var providerName string
	var strategyName string
	var blockMB int
	var pageLimit uint

	flag.StringVar(&providerName, "provider", "concurrent", "page provider: concurrent, single, static")
	flag.StringVar(&strategyName, "strategy", "freelist", "carving strategy: freelist, bump")
	flag.IntVar(&blockMB, "m", 1, "static provider reservation, in MiB")
	flag.UintVar(&pageLimit, "pages", 1024, "outstanding page limit for the concurrent provider")
	flag.Parse()

	const bytesPerMiB = 1 << 20
	p, err := buildProvider(providerName, uint32(pageLimit), uint64(blockMB)*bytesPerMiB)
	if err != nil {
		fmt.Fprintln(os.Stderr, "allocbench:", err)
		os.Exit(1)
	}

	s, err := buildStrategy(strategyName, p)
	if err != nil {
		fmt.Fprintln(os.Stderr, "allocbench:", err)
		os.Exit(1)
	}

	a := adapter.New(s)
	runConsole(a)
}

func buildProvider(name string, pageLimit uint32, staticSize uint64) (allocators.Provider, error) {
	switch name {
	case "concurrent":
		return provider.NewConcurrentPage(ospage.New(), pageLimit), nil
	case "single":
		return provider.NewPage(ospage.New()), nil
	case "static":
		return provider.NewStatic(staticSize), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", name)
	}
}

func buildStrategy(name string, p allocators.Provider) (allocators.Strategy, error) {
	switch name {
	case "freelist":
		return strategy.NewFreeList(p, allocators.DefaultOptions()), nil
	case "bump":
		return strategy.NewBump(p, true), nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", name)
	}
}

// runConsole drives a and reports timing for each command. Allocations are
// kept by label so the session can free them back by name; exit releases
// whatever is still outstanding.
func runConsole(a *adapter.Adapter) {
	live := map[string][]byte{}

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("Available commands: alloc <label> <bytes>, free <label>, exit")

	for scanner.Scan() {
		parts := strings.SplitN(strings.TrimSpace(scanner.Text()), " ", 3)
		switch parts[0] {
		case "exit":
			for label, b := range live {
				_ = a.Free(b)
				delete(live, label)
			}
			return
		case "alloc":
			if len(parts) != 3 {
				fmt.Println("Usage: alloc <label> <bytes>")
				continue
			}
			n, err := strconv.Atoi(parts[2])
			if err != nil {
				fmt.Println("bad size:", err)
				continue
			}
			start := time.Now()
			b, err := a.Alloc(n)
			if err != nil {
				fmt.Println("alloc error:", err)
				continue
			}
			live[parts[1]] = b
			fmt.Printf("allocated %d bytes as %q in %s\n", n, parts[1], time.Since(start))
		case "free":
			if len(parts) != 2 {
				fmt.Println("Usage: free <label>")
				continue
			}
			b, ok := live[parts[1]]
			if !ok {
				fmt.Println("no such allocation:", parts[1])
				continue
			}
			start := time.Now()
			if err := a.Free(b); err != nil {
				fmt.Println("free error:", err)
				continue
			}
			delete(live, parts[1])
			fmt.Printf("freed %q in %s\n", parts[1], time.Since(start))
		default:
			fmt.Println("Unknown command. Try: alloc, free or exit.")
		}
	}
}
