// Command kydras is a library-first CLI over the replication engine: every
// pool/drive/file operation is a subcommand, plus `serve` for the optional
// admin HTTP surface.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"kydras/internal/apiserver"
	"kydras/internal/engine"
	"kydras/internal/heartbeat"
	"kydras/internal/index"
	"kydras/internal/poolmodel"
	kwebsocket "kydras/internal/websocket"
)

func main() {
	dbPath := flag.String("db", "", "path to the sidecar SQLite index (default: per-user KydrasStorage/kydras.db)")
	listenAddr := flag.String("listen", "127.0.0.1:8077", "listen address for the admin HTTP surface (serve subcommand only)")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	resolvedDB := *dbPath
	if resolvedDB == "" {
		p, err := index.DefaultDBPath()
		if err != nil {
			log.Fatalf("resolve default db path: %v", err)
		}
		resolvedDB = p
	}

	eng, err := engine.New(resolvedDB)
	if err != nil {
		log.Fatalf("start engine: %v", err)
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "create-pool":
		runCreatePool(eng, rest)
	case "add-drive":
		runAddDrive(eng, rest)
	case "remove-drive":
		runRemoveDrive(eng, rest)
	case "list-pools":
		runListPools(eng)
	case "write":
		runWrite(eng, rest)
	case "read":
		runRead(eng, rest)
	case "delete":
		runDelete(eng, rest)
	case "exists":
		runExists(eng, rest)
	case "list":
		runList(eng, rest)
	case "rebalance":
		runRebalance(eng, rest)
	case "health":
		runHealth(eng, rest)
	case "set-rules":
		runSetRules(eng, rest)
	case "serve":
		runServe(eng, *listenAddr)
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: kydras [-db path] [-listen addr] <command> [args]

commands:
  create-pool   <name> <type> <drive-path> [drive-path...]
  add-drive     <pool-id> <drive-path>
  remove-drive  <pool-id> <drive-path>
  list-pools
  write         <pool-id> <rel-path> <local-source-file>
  read          <pool-id> <rel-path> <local-dest-file>
  delete        <pool-id> <rel-path>
  exists        <pool-id> <rel-path>
  list          <pool-id> [glob-pattern]
  rebalance     <pool-id>
  health        <drive-path>
  set-rules     <pool-id> <rule> [rule...]
  serve

a rule is a comma-separated key=value list, evaluated in the order given:
  pattern=*.mp4,dup=2,ssd=true,max=10485760,tier=Hot,target=/mnt/fast`)
}

// parseRule parses one "key=value,key=value" rule spec into a PoolRule.
// Unknown keys are rejected; pattern is required.
func parseRule(spec string) (poolmodel.PoolRule, error) {
	var rule poolmodel.PoolRule
	rule.DuplicationLevel = 1

	for _, field := range strings.Split(spec, ",") {
		kv := strings.SplitN(field, "=", 2)
		if len(kv) != 2 {
			return rule, fmt.Errorf("malformed rule field %q (want key=value)", field)
		}
		key, val := strings.TrimSpace(kv[0]), strings.TrimSpace(kv[1])
		switch key {
		case "pattern":
			rule.Pattern = val
		case "dup":
			n, err := strconv.Atoi(val)
			if err != nil {
				return rule, fmt.Errorf("invalid dup %q: %w", val, err)
			}
			rule.DuplicationLevel = n
		case "ssd":
			b, err := strconv.ParseBool(val)
			if err != nil {
				return rule, fmt.Errorf("invalid ssd %q: %w", val, err)
			}
			rule.PreferSSD = b
		case "max":
			n, err := strconv.ParseInt(val, 10, 64)
			if err != nil {
				return rule, fmt.Errorf("invalid max %q: %w", val, err)
			}
			rule.MaxFileSize = n
		case "tier":
			rule.PreferredTier = poolmodel.Tier(val)
		case "target":
			rule.TargetDrive = val
		default:
			return rule, fmt.Errorf("unknown rule field %q", key)
		}
	}

	if rule.Pattern == "" {
		return rule, fmt.Errorf("rule %q missing required pattern=", spec)
	}
	return rule, nil
}

func runSetRules(eng *engine.Engine, args []string) {
	if len(args) < 2 {
		usage()
		os.Exit(2)
	}
	poolID, specs := args[0], args[1:]

	rules := make([]poolmodel.PoolRule, 0, len(specs))
	for _, spec := range specs {
		rule, err := parseRule(spec)
		if err != nil {
			log.Fatalf("set-rules: %v", err)
		}
		rules = append(rules, rule)
	}

	if err := eng.SetRules(poolID, rules); err != nil {
		log.Fatalf("set-rules: %v", err)
	}
	fmt.Println("ok")
}

func runCreatePool(eng *engine.Engine, args []string) {
	if len(args) < 3 {
		usage()
		os.Exit(2)
	}
	name, poolType, drives := args[0], poolmodel.PoolType(args[1]), args[2:]
	pool, err := eng.CreatePool(name, drives, poolType)
	if err != nil {
		log.Fatalf("create-pool: %v", err)
	}
	fmt.Printf("pool %s created (%s), mount hint %s\n", pool.ID, pool.Name, pool.MountHint)
}

func runAddDrive(eng *engine.Engine, args []string) {
	if len(args) != 2 {
		usage()
		os.Exit(2)
	}
	if err := eng.AddDrive(args[0], args[1]); err != nil {
		log.Fatalf("add-drive: %v", err)
	}
	fmt.Println("ok")
}

func runRemoveDrive(eng *engine.Engine, args []string) {
	if len(args) != 2 {
		usage()
		os.Exit(2)
	}
	if err := eng.RemoveDrive(args[0], args[1]); err != nil {
		log.Fatalf("remove-drive: %v", err)
	}
	fmt.Println("ok")
}

func runListPools(eng *engine.Engine) {
	for _, p := range eng.ListPools() {
		fmt.Printf("%s\t%s\t%s\t%d drives\n", p.ID, p.Name, p.Type, len(p.Drives))
	}
}

func runWrite(eng *engine.Engine, args []string) {
	if len(args) != 3 {
		usage()
		os.Exit(2)
	}
	poolID, relPath, src := args[0], args[1], args[2]

	f, err := os.Open(src)
	if err != nil {
		log.Fatalf("open source: %v", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		log.Fatalf("stat source: %v", err)
	}

	if err := eng.Write(poolID, relPath, f, info.Size()); err != nil {
		log.Fatalf("write: %v", err)
	}
	fmt.Println("ok")
}

func runRead(eng *engine.Engine, args []string) {
	if len(args) != 3 {
		usage()
		os.Exit(2)
	}
	poolID, relPath, dst := args[0], args[1], args[2]

	src, err := eng.Read(poolID, relPath)
	if err != nil {
		log.Fatalf("read: %v", err)
	}
	defer src.Close()

	out, err := os.Create(dst)
	if err != nil {
		log.Fatalf("create dest: %v", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, src); err != nil {
		log.Fatalf("copy: %v", err)
	}
	fmt.Println("ok")
}

func runDelete(eng *engine.Engine, args []string) {
	if len(args) != 2 {
		usage()
		os.Exit(2)
	}
	if err := eng.Delete(args[0], args[1]); err != nil {
		log.Fatalf("delete: %v", err)
	}
	fmt.Println("ok")
}

func runExists(eng *engine.Engine, args []string) {
	if len(args) != 2 {
		usage()
		os.Exit(2)
	}
	ok, err := eng.Exists(args[0], args[1])
	if err != nil {
		log.Fatalf("exists: %v", err)
	}
	fmt.Println(strconv.FormatBool(ok))
}

func runList(eng *engine.Engine, args []string) {
	if len(args) < 1 {
		usage()
		os.Exit(2)
	}
	pattern := "*"
	if len(args) > 1 {
		pattern = args[1]
	}
	names, err := eng.List(args[0], pattern)
	if err != nil {
		log.Fatalf("list: %v", err)
	}
	for _, n := range names {
		fmt.Println(n)
	}
}

func runRebalance(eng *engine.Engine, args []string) {
	if len(args) != 1 {
		usage()
		os.Exit(2)
	}
	report, err := eng.Rebalance(args[0])
	if err != nil {
		log.Fatalf("rebalance: %v", err)
	}
	fmt.Printf("converged=%d copied=%d evicted=%d failed=%d\n",
		report.Converged, report.Copied, report.Evicted, len(report.Failed))
	for _, f := range report.Failed {
		fmt.Println("  failed:", f)
	}
}

func runHealth(eng *engine.Engine, args []string) {
	if len(args) != 1 {
		usage()
		os.Exit(2)
	}
	fmt.Println(eng.CheckDriveHealth(args[0]))
}

// severityFor maps a drive's newly observed health state to the monitor
// feed's severity scale.
func severityFor(state poolmodel.HealthState) kwebsocket.Severity {
	switch state {
	case poolmodel.HealthHealthy:
		return kwebsocket.SeverityInfo
	case poolmodel.HealthWarning:
		return kwebsocket.SeverityWarning
	default:
		return kwebsocket.SeverityCritical
	}
}

func runServe(eng *engine.Engine, listenAddr string) {
	adminSrv := apiserver.New(eng)
	srv := &http.Server{
		Addr:         listenAddr,
		Handler:      adminSrv.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	var roots []string
	for _, p := range eng.ListPools() {
		for _, d := range p.Drives {
			roots = append(roots, d.RootPath)
		}
	}
	if len(roots) > 0 {
		hub := adminSrv.Hub()
		mon := heartbeat.NewMonitor(roots, 30*time.Second, func(root string, previous, current poolmodel.HealthState) {
			log.Printf("drive %s health changed %s -> %s", root, previous, current)
			hub.Broadcast(kwebsocket.EventDriveHealthChange, map[string]string{
				"drive_root": root,
				"previous":   string(previous),
				"current":    string(current),
			}, severityFor(current))
		})
		mon.Start()
		defer mon.Stop()
	}

	go func() {
		log.Printf("admin surface listening on %s", listenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Println("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
