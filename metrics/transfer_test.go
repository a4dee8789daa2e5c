package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestTransferCollector_Download(t *testing.T) {
	assert := assert.New(t)
	c := NewTransferCollector("")
	c.StreamStarted("download")
	assert.Equal(1.0, testutil.ToFloat64(c.active.WithLabelValues("download")))

	c.ObserveDownload(ModeBounded, OutcomeCompleted, 1024)
	assert.Equal(0.0, testutil.ToFloat64(c.active.WithLabelValues("download")))
	assert.Equal(1024.0, testutil.ToFloat64(c.downloadBytes))
	assert.Equal(1.0, testutil.ToFloat64(c.downloads.WithLabelValues(ModeBounded, OutcomeCompleted)))
}

func TestTransferCollector_Upload(t *testing.T) {
	assert := assert.New(t)
	c := NewTransferCollector("test")
	c.StreamStarted("upload")
	c.ObserveUpload(OutcomeCompleted, 2048, 50*time.Millisecond)
	c.StreamStarted("upload")
	c.ObserveUpload(OutcomeFailed, 10, 0)

	assert.Equal(2058.0, testutil.ToFloat64(c.uploadBytes))
	assert.Equal(1.0, testutil.ToFloat64(c.uploads.WithLabelValues(OutcomeCompleted)))
	assert.Equal(1.0, testutil.ToFloat64(c.uploads.WithLabelValues(OutcomeFailed)))
	assert.Equal(1, testutil.CollectAndCount(c.uploadDuration))
}

func TestTransferCollector_Registry(t *testing.T) {
	assert := assert.New(t)
	c := NewTransferCollector("speedtest")
	c.ObserveDownload(ModeUnbounded, OutcomeClosed, 1)
	families, err := c.Registry().Gather()
	assert.Nil(err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(names, "speedtest_download_bytes_total")
	assert.Contains(names, "speedtest_downloads_total")
}
