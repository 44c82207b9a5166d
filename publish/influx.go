package publish

import (
	"fmt"
	"strconv"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/banshee-data/uskin/config"
	"github.com/banshee-data/uskin/internal/monitoring"
	"github.com/banshee-data/uskin/uskin"
)

// PointWriter is the subset of the non-blocking influxdb2 api.WriteAPI used
// by InfluxSink.
type PointWriter interface {
	WritePoint(point *write.Point)
	Flush()
}

// InfluxSink writes one point per received node. Writes are buffered by
// the client; Close flushes them.
type InfluxSink struct {
	writer      PointWriter
	measurement string
	closeFn     func()
}

// NewInfluxSink writes points named measurement through w.
func NewInfluxSink(w PointWriter, measurement string) *InfluxSink {
	return &InfluxSink{writer: w, measurement: measurement}
}

// ConnectInflux creates a client for the configured server. Asynchronous
// write errors are logged.
func ConnectInflux(cfg *config.InfluxConfig) *InfluxSink {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	writeAPI := client.WriteAPI(cfg.Org, cfg.Bucket)
	go func() {
		for err := range writeAPI.Errors() {
			monitoring.Logf("publish: influx write to %s/%s: %v", cfg.Org, cfg.Bucket, err)
		}
	}()
	s := NewInfluxSink(writeAPI, cfg.GetMeasurement())
	s.closeFn = client.Close
	return s
}

// FrameReady implements uskin.FrameSink.
func (s *InfluxSink) FrameReady(sensorID string, f *uskin.Frame, n *uskin.NormalizedFrame) error {
	for i, r := range f.Nodes {
		if !r.Valid {
			continue
		}
		tags := map[string]string{
			"sensor": sensorID,
			"node":   fmt.Sprintf("0x%03X", r.NodeID),
			"index":  strconv.Itoa(r.Index),
		}
		fields := map[string]interface{}{
			"x": int64(r.X),
			"y": int64(r.Y),
			"z": int64(r.Z),
		}
		if n != nil && i < len(n.Nodes) && n.Nodes[i].Valid {
			fields["xn"] = n.Nodes[i].X
			fields["yn"] = n.Nodes[i].Y
			fields["zn"] = n.Nodes[i].Z
		}
		s.writer.WritePoint(influxdb2.NewPoint(s.measurement, tags, fields, f.Timestamp))
	}
	return nil
}

// Close flushes buffered points and releases the client.
func (s *InfluxSink) Close() error {
	s.writer.Flush()
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}
