// Copyright 2023 The go-argo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// flt-ingest converts Argo float transmissions into archive containers.
//
// Usage: flt-ingest [OPTIONS] FILE1 [FILE2 [FILE3 ...]]
//
// Example:
//
//	$> flt-ingest -d /data/floats -o /data/archives 7890.003.msg 7890.003.log
//	flt-ingest: float 7890: 1 transmission(s), wmo 5905123
//	flt-ingest: float 7890: archive "/data/archives/7890.flt" saved (3 cycles)
//
// Transmissions are grouped by float id taken from the
// <floatid>.<cycle>.<type> file name and each float is ingested
// concurrently, cycles in increasing order. Files whose checksum
// already appears in the ledger are skipped.
package main

import (
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-argo/flt/archive"
	"github.com/go-argo/flt/ledger"
	"github.com/go-argo/flt/msg"
	"github.com/go-argo/flt/registry"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
	mail "gopkg.in/gomail.v2"
)

func main() {
	log.SetPrefix("flt-ingest: ")
	log.SetFlags(0)

	_ = godotenv.Load()

	var (
		dir     = flag.String("d", ".", "work directory (fleet registry, default ledger location)")
		ldg     = flag.String("l", "", "ledger file (default DIR/ledger.csv)")
		odir    = flag.String("o", "", "output directory for archives (default DIR)")
		dsn     = flag.String("dsn", "", "fleet registry database DSN (default: DIR/floats.csv)")
		verbose = flag.Bool("v", false, "enable verbose mode")
	)

	flag.Usage = func() {
		fmt.Printf(`flt-ingest converts Argo float transmissions into archive containers.

Usage: flt-ingest [OPTIONS] FILE1 [FILE2 [FILE3 ...]]

Example:

 $> flt-ingest -d /data/floats -o /data/archives 7890.003.msg 7890.003.log
 flt-ingest: float 7890: 1 transmission(s), wmo 5905123
 flt-ingest: float 7890: archive "/data/archives/7890.flt" saved (3 cycles)

`)
		flag.PrintDefaults()
	}

	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		log.Fatalf("missing path to input transmission file")
	}

	err := run(*dir, *ldg, *odir, *dsn, *verbose, flag.Args())
	if err != nil {
		alertMail(err)
		log.Fatalf("could not ingest transmissions: %+v", err)
	}
}

func run(dir, lpath, odir, dsn string, verbose bool, args []string) error {
	if lpath == "" {
		lpath = filepath.Join(dir, "ledger.csv")
	}
	if odir == "" {
		odir = dir
	}

	reg, closeReg, err := openRegistry(dir, dsn)
	if err != nil {
		return fmt.Errorf("could not open fleet registry: %w", err)
	}
	defer closeReg()

	led, err := ledger.Open(lpath)
	if err != nil {
		return fmt.Errorf("could not open ledger %q: %w", lpath, err)
	}

	floats := groupByFloat(args)
	ids := make([]int, 0, len(floats))
	for id := range floats {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	ing := &ingester{
		reg:     reg,
		led:     led,
		odir:    odir,
		verbose: verbose,
	}

	var grp errgroup.Group
	for _, id := range ids {
		id := id
		grp.Go(func() error {
			return ing.float(id, floats[id])
		})
	}
	return grp.Wait()
}

func openRegistry(dir, dsn string) (registry.Registry, func() error, error) {
	if dsn != "" {
		db, err := registry.OpenDB(dsn)
		if err != nil {
			return nil, nil, err
		}
		return db, db.Close, nil
	}
	reg, err := registry.OpenFile(filepath.Join(dir, "floats.csv"))
	if err != nil {
		return nil, nil, err
	}
	return reg, func() error { return nil }, nil
}

// job is the pair of transmissions of one float cycle.
type job struct {
	cycle int
	msg   string
	log   string
}

// groupByFloat pairs the input files by (float, cycle) and groups the
// pairs by float id, cycles in increasing order. Empty files, files
// with unexpected names and log files with no companion msg are
// skipped with a warning.
func groupByFloat(args []string) map[int][]job {
	type key struct {
		id    int
		cycle int
	}
	pairs := make(map[key]*job)

	for _, fname := range args {
		fi, err := os.Stat(fname)
		if err != nil {
			log.Printf("skipping %q: %+v", fname, err)
			continue
		}
		if fi.Size() == 0 {
			log.Printf("skipping %q: empty file", fname)
			continue
		}
		id, cycle, ftype, err := msg.SplitName(fname)
		if err != nil {
			log.Printf("skipping %q: %+v", fname, err)
			continue
		}
		k := key{id, cycle}
		if pairs[k] == nil {
			pairs[k] = &job{cycle: cycle}
		}
		switch ftype {
		case "msg":
			pairs[k].msg = fname
		case "log":
			pairs[k].log = fname
		default:
			log.Printf("skipping %q: unknown transmission type %q", fname, ftype)
		}
	}

	floats := make(map[int][]job)
	for k, j := range pairs {
		if j.msg == "" {
			if j.log != "" {
				log.Printf("skipping %q: no companion msg file", j.log)
			}
			continue
		}
		floats[k.id] = append(floats[k.id], *j)
	}
	for id := range floats {
		jobs := floats[id]
		sort.Slice(jobs, func(i, j int) bool {
			return jobs[i].cycle < jobs[j].cycle
		})
	}
	return floats
}

type ingester struct {
	reg     registry.Registry
	led     *ledger.Ledger
	odir    string
	verbose bool

	mu sync.Mutex // guards led
}

// float ingests the transmissions of one float: ledger gate, parse,
// merge into the loaded series, save the archive, mark the ledger.
// Per-file problems are logged and recoverable; only registry, archive
// or ledger failures abort the batch.
func (ing *ingester) float(id int, jobs []job) error {
	wmoid, err := ing.wmoid(id)
	if err != nil {
		if errors.Is(err, registry.ErrUnknownFloat) {
			log.Printf("float %d: not in fleet registry, skipping", id)
			return nil
		}
		return fmt.Errorf("float %d: could not resolve WMO id: %w", id, err)
	}

	var todo []job
	for _, j := range jobs {
		changed, err := ing.changed(j)
		if err != nil {
			log.Printf("float %d: skipping %q: %+v", id, j.msg, err)
			continue
		}
		if changed {
			todo = append(todo, j)
		}
	}
	if len(todo) == 0 {
		if ing.verbose {
			log.Printf("float %d: all %d transmission(s) up to date", id, len(jobs))
		}
		return nil
	}
	log.Printf("float %d: %d transmission(s), wmo %d", id, len(todo), wmoid)

	s, err := archive.LoadOrNew(ing.odir, id)
	if err != nil {
		return fmt.Errorf("float %d: could not load archive: %w", id, err)
	}

	var done []job
	for _, j := range todo {
		rec, err := msg.ParseFile(j.msg)
		if err != nil {
			log.Printf("float %d: could not parse %q: %+v", id, j.msg, err)
			continue
		}
		if j.log != "" {
			err = msg.ParseLogFile(j.log, rec)
			if err != nil {
				log.Printf("float %d: could not parse %q: %+v", id, j.log, err)
			}
		}
		if ing.verbose {
			for _, cond := range rec.Report {
				log.Printf("float %d: %s: %v", id, j.msg, cond)
			}
		}
		err = s.Merge(rec)
		if err != nil {
			log.Printf("float %d: could not merge %q: %+v", id, j.msg, err)
			continue
		}
		done = append(done, j)
	}
	if len(done) == 0 {
		return nil
	}

	fname := archive.FileName(ing.odir, id)
	err = archive.Save(fname, wmoid, s)
	if err != nil {
		return fmt.Errorf("float %d: could not save archive %q: %w", id, fname, err)
	}
	log.Printf("float %d: archive %q saved (%d cycles)", id, fname, s.Len())

	for _, j := range done {
		err = ing.mark(j, wmoid)
		if err != nil {
			return fmt.Errorf("float %d: could not mark ledger: %w", id, err)
		}
	}
	return nil
}

func (ing *ingester) wmoid(id int) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return ing.reg.WMOID(ctx, id)
}

// changed reports whether the cycle needs rebuilding: a msg or log
// file whose checksum differs from the last ledger entry.
func (ing *ingester) changed(j job) (bool, error) {
	ing.mu.Lock()
	defer ing.mu.Unlock()

	same, err := ing.led.Unchanged(j.msg)
	if err != nil {
		return false, err
	}
	if !same {
		return true, nil
	}
	if j.log == "" {
		return false, nil
	}
	same, err = ing.led.Unchanged(j.log)
	if err != nil {
		return false, err
	}
	return !same, nil
}

func (ing *ingester) mark(j job, wmoid int) error {
	ing.mu.Lock()
	defer ing.mu.Unlock()

	err := ing.led.Mark(j.msg, wmoid)
	if err != nil {
		return err
	}
	if j.log != "" {
		err = ing.led.Mark(j.log, wmoid)
		if err != nil {
			return err
		}
	}
	return nil
}

// mailConfig holds the alert-mail credentials. They are read at send
// time, not at package init, so that values injected by godotenv.Load
// are honored.
type mailConfig struct {
	usr  string
	pwd  string
	srv  string
	port int
	tgts []string
}

func mailConfigFromEnv() mailConfig {
	cfg := mailConfig{
		usr:  os.Getenv("MAIL_USERNAME"),
		pwd:  os.Getenv("MAIL_PASSWORD"),
		srv:  os.Getenv("MAIL_SERVER"),
		port: atoi(os.Getenv("MAIL_PORT")),
	}
	if tgts := os.Getenv("MAIL_TGTS"); tgts != "" {
		cfg.tgts = strings.Split(tgts, ",")
	}
	return cfg
}

func (cfg mailConfig) valid() bool {
	return cfg.usr != "" && cfg.pwd != "" && cfg.srv != "" &&
		cfg.port != 0 && len(cfg.tgts) != 0
}

func alertMail(batch error) {
	cfg := mailConfigFromEnv()
	if !cfg.valid() {
		log.Printf("could not send mail alert: missing credentials")
		return
	}

	m := mail.NewMessage()
	m.SetHeader("From", cfg.usr)
	m.SetHeader("Bcc", cfg.tgts...)
	m.SetHeader("Subject", "[flt-ingest] ingestion failure")
	m.SetBody("text/plain", fmt.Sprintf("error: %+v\ntime: %v",
		batch, time.Now().UTC(),
	))

	dial := mail.NewDialer(cfg.srv, cfg.port, cfg.usr, cfg.pwd)
	dial.TLSConfig = &tls.Config{
		InsecureSkipVerify: true,
	}
	err := dial.DialAndSend(m)
	if err != nil {
		log.Printf("could not send mail alert: %+v", err)
	}
}

func atoi(s string) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return v
}
