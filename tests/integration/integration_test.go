// Package integration exercises redikv end to end with a real
// github.com/redis/go-redis/v9 client against an in-process server,
// the way the teacher's own suite validates its RESP client against a
// live Dragonfly/Redis instance in internal/redisx's tests.
package integration

import (
	"context"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"redikv/internal/blocking"
	"redikv/internal/connserver"
	"redikv/internal/dispatcher"
	"redikv/internal/pubsub"
	"redikv/internal/store"
)

func startServer(t *testing.T) (*goredis.Client, func()) {
	t.Helper()
	disp := dispatcher.New(store.New(), blocking.New(), pubsub.New())
	srv := connserver.New("127.0.0.1:0", disp)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		srv.Serve(ctx)
		close(done)
	}()

	var addr string
	for i := 0; i < 200; i++ {
		if a := srv.Addr(); a != "127.0.0.1:0" {
			addr = a
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if addr == "" {
		t.Fatal("server never bound a listener")
	}

	client := goredis.NewClient(&goredis.Options{Addr: addr})
	cleanup := func() {
		client.Close()
		cancel()
		<-done
	}
	return client, cleanup
}

func TestStringCommands(t *testing.T) {
	client, cleanup := startServer(t)
	defer cleanup()
	ctx := context.Background()

	if err := client.Set(ctx, "k", "v", 0).Err(); err != nil {
		t.Fatal(err)
	}
	v, err := client.Get(ctx, "k").Result()
	if err != nil || v != "v" {
		t.Fatalf("got %q, %v", v, err)
	}
	if err := client.Set(ctx, "n", "10", 0).Err(); err != nil {
		t.Fatal(err)
	}
	n, err := client.Incr(ctx, "n").Result()
	if err != nil || n != 11 {
		t.Fatalf("INCR got %d, %v", n, err)
	}
	del, err := client.Del(ctx, "k", "n").Result()
	if err != nil || del != 2 {
		t.Fatalf("DEL got %d, %v", del, err)
	}
}

func TestListAndBlockingPop(t *testing.T) {
	client, cleanup := startServer(t)
	defer cleanup()
	ctx := context.Background()

	if err := client.RPush(ctx, "q", "a", "b", "c").Err(); err != nil {
		t.Fatal(err)
	}
	vals, err := client.LRange(ctx, "q", 0, -1).Result()
	if err != nil || len(vals) != 3 {
		t.Fatalf("LRANGE got %v, %v", vals, err)
	}

	popped := make(chan *goredis.StringSliceCmd, 1)
	go func() {
		popped <- client.BLPop(ctx, time.Second, "empty-queue")
	}()
	time.Sleep(20 * time.Millisecond)
	if err := client.LPush(ctx, "empty-queue", "woken").Err(); err != nil {
		t.Fatal(err)
	}

	select {
	case res := <-popped:
		got, err := res.Result()
		if err != nil || len(got) != 2 || got[1] != "woken" {
			t.Fatalf("BLPOP got %v, %v", got, err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for BLPOP to wake")
	}
}

func TestZSetCommands(t *testing.T) {
	client, cleanup := startServer(t)
	defer cleanup()
	ctx := context.Background()

	if err := client.ZAdd(ctx, "z",
		goredis.Z{Score: 1, Member: "a"},
		goredis.Z{Score: 2, Member: "b"},
	).Err(); err != nil {
		t.Fatal(err)
	}
	members, err := client.ZRange(ctx, "z", 0, -1).Result()
	if err != nil || len(members) != 2 || members[0] != "a" {
		t.Fatalf("ZRANGE got %v, %v", members, err)
	}
	score, err := client.ZScore(ctx, "z", "b").Result()
	if err != nil || score != 2 {
		t.Fatalf("ZSCORE got %v, %v", score, err)
	}
}

func TestTransactionMultiExec(t *testing.T) {
	client, cleanup := startServer(t)
	defer cleanup()
	ctx := context.Background()

	pipe := client.TxPipeline()
	incr := pipe.Incr(ctx, "counter")
	incr2 := pipe.Incr(ctx, "counter")
	if _, err := pipe.Exec(ctx); err != nil {
		t.Fatal(err)
	}
	if incr.Val() != 1 || incr2.Val() != 2 {
		t.Fatalf("got %d, %d", incr.Val(), incr2.Val())
	}
}

func TestPubSubDeliversMessage(t *testing.T) {
	client, cleanup := startServer(t)
	defer cleanup()
	ctx := context.Background()

	sub := client.Subscribe(ctx, "news")
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatal(err)
	}
	ch := sub.Channel()

	if err := client.Publish(ctx, "news", "hello").Err(); err != nil {
		t.Fatal(err)
	}

	select {
	case msg := <-ch:
		if msg.Payload != "hello" {
			t.Fatalf("got %q", msg.Payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for pub/sub delivery")
	}
}
