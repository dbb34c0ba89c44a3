package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/slicework/choreo-go/adapters/amqp"
	"github.com/slicework/choreo-go/core/envelope"
	"github.com/slicework/choreo-go/core/events"
)

// === Config ===

// NOTE: run rabbitmq: docker run --net=host rabbitmq:3-alpine

var (
	logLevel  = slog.LevelInfo
	N         = getEnvInt("N", 10_000)
	batchSize = getEnvInt("B", 1_000)
	service   = getEnv("SERVICE", "loadtest")
)

func getEnv(key, fallback string) string {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v, err := strconv.Atoi(getEnv(key, fmt.Sprintf("%d", fallback)))
	if err != nil {
		return fallback
	}
	return v
}

func main() {
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	connect := amqp.ReuseConnection(amqp.ConnectDefault())
	top := amqp.ForService(service, "order.created")

	// Declare the queue set so every publish is routable.
	nc, closeConn, err := connect()
	checkErr(err)
	ch, err := nc.Channel()
	checkErr(err)
	checkErr(top.Declare(ch))
	checkErr(ch.Close())
	defer closeConn()

	pub, err := amqp.NewPublisher(amqp.PublisherConfig{
		Log:      log,
		Channels: amqp.Channels(connect),
		Topology: top,
	})
	checkErr(err)

	// === START ===

	log.Info("==================================")
	log.Info("Starting ...", slog.Int("n", N), slog.Int("batch", batchSize))

	startAt := time.Now()
	lastTime := time.Now()

	for i := 0; i < N; i++ {
		env, err := envelope.New(events.OrderCreated, events.OrderCreatedPayload{
			OrderID:    fmt.Sprintf("load-%d", i),
			Items:      []events.Item{{ItemID: "i-1", ProductName: "Pizza", Quantity: 1, Price: 9.99}},
			TotalPrice: 9.99,
			Currency:   "EUR",
		})
		checkErr(err)
		checkErr(pub.Publish(ctx, "order.created", env, fmt.Sprintf("corr-load-%d", i)))

		if i == 0 {
			continue
		}
		if i%100 == 0 {
			print(".")
		}
		if i%batchSize == 0 {
			mu := getMemUsage()

			n := time.Now()
			took := n.Sub(lastTime)
			fmt.Printf(" | %5d msgs | %6d ms |  %6d msgs/s | (%d / %d) MiB mem (sys) |\n", batchSize, took.Milliseconds(), int(float64(batchSize)/took.Seconds()), mu.Alloc/1024/1024, mu.Sys/1024/1024)
			lastTime = n
		}
	}

	// === stats ===
	println("")
	println("==========================================")

	doneAt := time.Now()
	took := doneAt.Sub(startAt)
	runtime.GC()

	fmt.Printf("total runtime: %.3f seconds\n", took.Seconds())
	fmt.Printf("avg. confirmed publishes/s: %d\n", int(float64(N)/took.Seconds()))
}

// === stats helpers ===

type MemUsage struct {
	Alloc      uint64 // bytes allocated and not yet freed (heap)
	TotalAlloc uint64 // cumulative bytes allocated
	Sys        uint64 // total bytes obtained from OS
	NumGC      uint32 // gc cycles
}

func getMemUsage() MemUsage {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return MemUsage{
		Alloc:      m.Alloc,
		TotalAlloc: m.TotalAlloc,
		Sys:        m.Sys,
		NumGC:      m.NumGC,
	}
}

// === Helpers ===

func checkErr(err error) {
	if err != nil {
		panic(err)
	}
}
