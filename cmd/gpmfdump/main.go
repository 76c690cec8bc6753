// Command gpmfdump walks a raw GPMF payload and prints its KLV structure,
// one line per record, indenting nested records under their parent.
package main

import (
	"fmt"
	"os"

	"github.com/tetsuo/gpmf"
	"go.uber.org/zap"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <payload-file>\n", os.Args[0])
		os.Exit(2)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	buf, err := os.ReadFile(os.Args[1])
	if err != nil {
		logger.Fatal("read payload", zap.Error(err))
	}

	r := gpmf.NewReader(buf)
	if err := walk(&r, 0); err != nil {
		logger.Fatal("walk payload", zap.Error(err))
	}
}

func walk(r *gpmf.Reader, depth int) error {
	for {
		ok, err := r.Next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		indent := ""
		for i := 0; i < depth; i++ {
			indent += "  "
		}
		fmt.Printf("%s%s type=%c size=%d repeat=%d\n", indent, r.Key(), byte(r.Type()), r.StructSize(), r.Repeat())

		if r.Type().IsNest() {
			r.Enter()
			if err := walk(r, depth+1); err != nil {
				return err
			}
			r.Exit()
		}
	}
}
