// Package restydump writes every http exchange of a resty client to a
// directory, one file per exchange. It is meant for working out why a
// portal does not behave.
package restydump

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/go-resty/resty/v2"
	"github.com/mazen160/go-random"
)

type FilesystemOutput struct {
	directory string
}

func NewFilesystemOutput(dir string) (FilesystemOutput, error) {
	err := os.MkdirAll(dir, 0777)
	if err != nil {
		return FilesystemOutput{}, err
	}
	return FilesystemOutput{directory: dir}, nil
}

func (o FilesystemOutput) Write(id string, contents string) {
	err := os.WriteFile(filepath.Join(o.directory, id), []byte(contents), 0600)
	if err != nil {
		slog.Warn("failed to write message info file", "id", id, "err", err)
	}
}

// Attach dumps every response the client receives to output. Files are named
// <client>-<n>.txt where client is random per call, so several clients can
// share a directory.
func Attach(client *resty.Client, output FilesystemOutput) error {
	prefix, err := random.String(6)
	if err != nil {
		return err
	}
	var counter atomic.Uint64
	client.OnAfterResponse(func(_ *resty.Client, res *resty.Response) error {
		id := fmt.Sprintf("%s-%04d.txt", prefix, counter.Add(1))
		output.Write(id, formatHttpMessage(res))
		return nil
	})
	return nil
}
