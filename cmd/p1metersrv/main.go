// The p1metersrv command runs one or more fake P1 meters,
// which is useful for trying out p1influx without real hardware.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/juju/loggo"

	"github.com/rogpeppe/p1influx/p1metertest"
)

var logger = loggo.GetLogger("p1metersrv")

var (
	nflag   = flag.Int("n", 1, "number of meter servers to start (ignored if addresses explicitly specified)")
	genflag = flag.Int("smr", 50, "protocol generation (smr_version) reported by the meters")
	gasflag = flag.Bool("gas", true, "report gas readings")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: p1metersrv [flags] [<listenaddr>...]\n")
		flag.PrintDefaults()
		os.Exit(2)
	}
	flag.Parse()
	var addrs []string

	if flag.NArg() > 0 {
		addrs = flag.Args()
	} else {
		for i := 0; i < *nflag; i++ {
			addrs = append(addrs, "localhost:0")
		}
	}
	for _, addr := range addrs {
		srv, err := p1metertest.NewServer(addr)
		if err != nil {
			logger.Errorf("cannot start server: %v", err)
			os.Exit(1)
		}
		srv.SetData(p1metertest.Data(*genflag, *gasflag))
		fmt.Printf("%v\n", srv.Addr)
	}
	select {}
}
