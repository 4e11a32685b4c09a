package main

import (
	"flag"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"

	"github.com/vntpd/vntpd"
)

var (
	fc = flag.String("c", "", "yaml config file")
	ft = flag.String("t", "", "base time to claim, unix timestamp or ISO-8601, overrides NTP_CUSTOM_TIME")
	fl = flag.String("l", "", "listen address, overrides config")
	ff = flag.Int("f", 16, "log flag")
	fv = flag.Bool("v", false, "print version")

	fpprof = flag.String("pprof", "", "pprof listen")

	Version = "dev"
)

func main() {
	flag.Parse()

	if *fv {
		log.Printf("vntpd %s", Version)
		flag.PrintDefaults()
		return
	}

	log.SetFlags(*ff)

	if *fpprof != "" {
		go http.ListenAndServe(*fpprof, nil)
	}

	cfg := &vntpd.Config{}
	if *fc != "" {
		var err error
		cfg, err = vntpd.NewConfigFromFile(*fc)
		if err != nil {
			log.Fatal(err)
		}
	}

	// flag > env > config file
	if *ft != "" {
		cfg.BaseTime = *ft
	} else if env := os.Getenv("NTP_CUSTOM_TIME"); env != "" {
		cfg.BaseTime = env
	}
	if *fl != "" {
		cfg.Listen = *fl
	}

	s, err := vntpd.NewService(cfg)
	if err != nil {
		log.Fatal(err)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		log.Print("shutting down")
		s.Shutdown()
	}()

	if err := s.Serve(); err != nil {
		log.Fatal(err)
	}
}
