package main

import (
	"errors"
	"log"
	"os"

	"code.cloudfoundry.org/bytefmt"
	"go.uber.org/zap"

	"github.com/scottcagno/seglog/pkg/seglog"
)

func main() {
	logger, err := zap.NewDevelopment()
	checkErr(err)

	dir, err := os.MkdirTemp("", "seglog-demo")
	checkErr(err)
	defer func() {
		_ = os.RemoveAll(dir)
	}()

	s, err := seglog.Open(dir, 0, &seglog.Config{
		MaxSize: 1 << 10,
		Logger:  logger,
	})
	checkErr(err)

	entry := []byte("one-demo-entry\n")
	count := 0
	for {
		if _, err = s.Write(entry); err != nil {
			if errors.Is(err, seglog.ErrSegmentFull) {
				break // this is where a segment manager would rotate
			}
			checkErr(err)
		}
		count++
	}
	checkErr(s.Flush())

	head, err := s.ReadAt(0, int64(len(entry)))
	checkErr(err)

	logger.Info("segment filled",
		zap.Int("entries", count),
		zap.Int64("offset", s.Offset()),
		zap.Int64("remaining", s.Remaining()),
		zap.String("capacity", bytefmt.ByteSize(uint64(s.MaxSize()))),
		zap.ByteString("head", head),
	)

	checkErr(s.Close())
}

func checkErr(err error) {
	if err != nil {
		log.Panicf("(%T) %v\n", err, err)
	}
}
