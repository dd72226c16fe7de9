package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/marmos91/seqstore/internal/logger"
	rootregistry "github.com/marmos91/seqstore/pkg/registry"
)

// rootsCollector exports the size of every registered root at scrape time.
type rootsCollector struct {
	reg *rootregistry.Registry

	files *prometheus.Desc
	dirs  *prometheus.Desc
	bytes *prometheus.Desc
	units *prometheus.Desc
}

// NewRootsCollector creates a collector walking the roots of reg on every
// scrape. Walking is proportional to the number of files, so keep scrape
// intervals reasonable for large stores.
func NewRootsCollector(reg *rootregistry.Registry) prometheus.Collector {
	labels := []string{"root", "path"}
	return &rootsCollector{
		reg:   reg,
		files: prometheus.NewDesc(prometheus.BuildFQName(namespace, "root", "files"), "Number of files under the root", labels, nil),
		dirs:  prometheus.NewDesc(prometheus.BuildFQName(namespace, "root", "dirs"), "Number of directories under the root", labels, nil),
		bytes: prometheus.NewDesc(prometheus.BuildFQName(namespace, "root", "bytes"), "Total size of files under the root", labels, nil),
		units: prometheus.NewDesc(prometheus.BuildFQName(namespace, "root", "units"), "Number of payload packages under the root", labels, nil),
	}
}

// RegisterRoots registers a roots collector with the global registry.
// It is a no-op when metrics are disabled.
func RegisterRoots(reg *rootregistry.Registry) error {
	if !IsEnabled() {
		return nil
	}
	return GetRegistry().Register(NewRootsCollector(reg))
}

func (c *rootsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.files
	ch <- c.dirs
	ch <- c.bytes
	ch <- c.units
}

func (c *rootsCollector) Collect(ch chan<- prometheus.Metric) {
	snapshot, err := c.reg.Snapshot()
	if err != nil {
		logger.Warn("Root scan for metrics incomplete: %v", err)
	}
	for _, s := range snapshot {
		ch <- prometheus.MustNewConstMetric(c.files, prometheus.GaugeValue, float64(s.Files), s.Name, s.Path)
		ch <- prometheus.MustNewConstMetric(c.dirs, prometheus.GaugeValue, float64(s.Dirs), s.Name, s.Path)
		ch <- prometheus.MustNewConstMetric(c.bytes, prometheus.GaugeValue, float64(s.Bytes), s.Name, s.Path)
		ch <- prometheus.MustNewConstMetric(c.units, prometheus.GaugeValue, float64(s.Units), s.Name, s.Path)
	}
}
