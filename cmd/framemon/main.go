package main

import (
	"context"
	"encoding/hex"
	"flag"
	"log"
	"strings"

	"github.com/robotalks/framelink/pkg/env"
	fx "github.com/robotalks/framelink/pkg/framework"
	"github.com/robotalks/framelink/pkg/l1/comm/mqtt"
	"github.com/robotalks/framelink/pkg/metrics"
)

var (
	linkID = "+"
)

func init() {
	env.SetupFlags()
	flag.StringVar(&linkID, "link", linkID, "Link ID to monitor, + for all.")
}

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds)

	q, err := env.NewConfig().NewQueue(false)
	if err != nil {
		log.Fatalln(err)
	}
	if token := q.Connect(); token.Wait() && token.Error() != nil {
		log.Fatalln(token.Error())
	}
	defer q.Close()

	infos, err := mqtt.Discover(context.Background(), q, mqtt.DefaultDiscoverTimeout)
	if err != nil {
		log.Fatalln(err)
	}
	for _, info := range infos {
		log.Printf("link %s: %s buf=%d slots=%d", info.ID, info.Device, info.BufSize, info.Slots)
	}

	q.Sub(mqtt.LinkTopic(linkID, "#"), mqtt.Handler(func(topic string, payload []byte) {
		suffix := topic[strings.LastIndex(topic, "/")+1:]
		switch suffix {
		case mqtt.TopicMeta:
			if len(payload) == 0 {
				log.Printf("%s: withdrawn", topic)
				return
			}
			log.Printf("%s: %s", topic, string(payload))
		case mqtt.TopicStats:
			report, err := metrics.UnmarshalReport(payload)
			if err != nil {
				log.Printf("%s: bad stats: %v", topic, err)
				return
			}
			log.Printf("%s: %s", topic, report)
		default:
			log.Printf("%s: [%d] %s", topic, len(payload), hex.EncodeToString(payload))
		}
	}))

	if err := fx.NewRunner().HandleSignals().Go(fx.NamedRun("monitor", fx.RunFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))).Wait(); err != nil {
		log.Fatalln(err)
	}
}
