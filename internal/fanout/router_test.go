package fanout

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xfn3t/smart-warehouse-sub000/internal/models"
	"github.com/xfn3t/smart-warehouse-sub000/internal/topics"
)

type published struct {
	topic   string
	payload string
}

type recordingPublisher struct {
	mu      sync.Mutex
	msgs    []published
	failFor map[string]bool
}

func (p *recordingPublisher) PublishTopic(_ context.Context, topic string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failFor[topic] {
		return errors.New("broker unavailable")
	}
	p.msgs = append(p.msgs, published{topic: topic, payload: string(payload)})
	return nil
}

func (p *recordingPublisher) topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.msgs))
	for _, m := range p.msgs {
		out = append(out, m.topic)
	}
	return out
}

// countingResolver 模拟带缓存的解析器，记录回源次数
type countingResolver struct {
	cache   map[string]string
	backing map[string]string
	lookups int
}

func (c *countingResolver) Resolve(_ context.Context, robot string) (string, bool) {
	if wh, ok := c.cache[robot]; ok {
		return wh, true
	}
	c.lookups++
	wh, ok := c.backing[robot]
	if ok {
		c.cache[robot] = wh
	}
	return wh, ok
}

func newRouter(pub *recordingPublisher, res WarehouseResolver) *Router {
	return NewRouter(pub, topics.NewTree("warehouse"), res, zap.NewNop())
}

func TestHandle_RawPayloadGoesToGlobalOnly(t *testing.T) {
	pub := &recordingPublisher{}
	r := newRouter(pub, &countingResolver{cache: map[string]string{}})

	require.NoError(t, r.Handle(context.Background(), []byte("garbage{")))
	require.Len(t, pub.msgs, 1)
	assert.Equal(t, "warehouse/robots", pub.msgs[0].topic)
	assert.Equal(t, "garbage{", pub.msgs[0].payload)
}

func TestHandle_RobotUpdateWithWarehouse(t *testing.T) {
	pub := &recordingPublisher{}
	res := &countingResolver{cache: map[string]string{}}
	r := newRouter(pub, res)

	payload, err := models.EncodeEvent(models.RobotUpdate{RobotCode: "RB-0001", Warehouse: "WH-1"})
	require.NoError(t, err)
	require.NoError(t, r.Handle(context.Background(), payload))

	assert.Equal(t, []string{"warehouse/robots", "warehouse/robots/RB-0001", "warehouse/WH-1/robots"}, pub.topics())
	for _, m := range pub.msgs {
		assert.Equal(t, string(payload), m.payload)
	}
	assert.Zero(t, res.lookups)
}

func TestHandle_ResolvesWarehouseOnceThenCaches(t *testing.T) {
	pub := &recordingPublisher{}
	res := &countingResolver{cache: map[string]string{}, backing: map[string]string{"r9": "WH-1"}}
	r := newRouter(pub, res)

	payload := []byte(`{"type":"robot_status","data":{"robotId":"r9","timestamp":"2024-05-01T10:00:00Z","status":"IDLE","batteryLevel":40}}`)
	require.NoError(t, r.Handle(context.Background(), payload))
	assert.Equal(t, 1, res.lookups)
	assert.Equal(t, "WH-1", res.cache["r9"])
	assert.Contains(t, pub.topics(), "warehouse/WH-1/robots")

	require.NoError(t, r.Handle(context.Background(), payload))
	assert.Equal(t, 1, res.lookups)
	assert.Len(t, pub.msgs, 6)
}

func TestHandle_UnresolvableRobotSkipsWarehouseTopicOnly(t *testing.T) {
	pub := &recordingPublisher{}
	r := newRouter(pub, &countingResolver{cache: map[string]string{}, backing: map[string]string{}})

	payload := []byte(`{"type":"robot_status","data":{"robotId":"ghost","timestamp":"2024-05-01T10:00:00Z","status":"IDLE","batteryLevel":40}}`)
	require.NoError(t, r.Handle(context.Background(), payload))
	assert.Equal(t, []string{"warehouse/robots", "warehouse/robots/ghost"}, pub.topics())
}

func TestHandle_LocationUpdate(t *testing.T) {
	pub := &recordingPublisher{}
	r := newRouter(pub, &countingResolver{cache: map[string]string{}})

	payload, err := models.EncodeEvent(models.LocationUpdate{LocationStatus: models.LocationStatus{
		LocationID: 2, WarehouseCode: "WH-1", Status: models.LocationRecent,
	}})
	require.NoError(t, err)
	require.NoError(t, r.Handle(context.Background(), payload))

	assert.Equal(t, []string{"warehouse/robots", "warehouse/locations", "warehouse/WH-1/locations"}, pub.topics())
}

func TestHandle_LocationUpdateResolvesViaRobot(t *testing.T) {
	pub := &recordingPublisher{}
	res := &countingResolver{cache: map[string]string{}, backing: map[string]string{"RB-0001": "WH-3"}}
	r := newRouter(pub, res)

	payload, err := models.EncodeEvent(models.LocationUpdate{RobotCode: "RB-0001"})
	require.NoError(t, err)
	require.NoError(t, r.Handle(context.Background(), payload))

	assert.Equal(t, []string{"warehouse/robots", "warehouse/locations", "warehouse/WH-3/locations"}, pub.topics())
}

func TestHandle_PublishFailureDoesNotStopOtherTopics(t *testing.T) {
	pub := &recordingPublisher{failFor: map[string]bool{"warehouse/robots": true}}
	r := newRouter(pub, &countingResolver{cache: map[string]string{}})

	payload, err := models.EncodeEvent(models.RobotUpdate{RobotCode: "RB-0001", Warehouse: "WH-1"})
	require.NoError(t, err)
	assert.NoError(t, r.Handle(context.Background(), payload))
	assert.Equal(t, []string{"warehouse/robots/RB-0001", "warehouse/WH-1/robots"}, pub.topics())
}

func TestHandle_MalformedIdentifierIsSkipped(t *testing.T) {
	pub := &recordingPublisher{}
	r := newRouter(pub, &countingResolver{cache: map[string]string{}})

	payload, err := models.EncodeEvent(models.RobotUpdate{RobotCode: "bad/robot", Warehouse: "WH+1"})
	require.NoError(t, err)
	assert.NoError(t, r.Handle(context.Background(), payload))
	assert.Equal(t, []string{"warehouse/robots"}, pub.topics())
}

type panickingResolver struct{}

func (panickingResolver) Resolve(context.Context, string) (string, bool) { panic("resolver bug") }

func TestHandle_RecoversFromPanic(t *testing.T) {
	pub := &recordingPublisher{}
	r := newRouter(pub, panickingResolver{})

	payload := []byte(`{"type":"robot_status","data":{"robotId":"r1","timestamp":"2024-05-01T10:00:00Z","status":"IDLE","batteryLevel":1}}`)
	assert.NotPanics(t, func() {
		assert.NoError(t, r.Handle(context.Background(), payload))
	})
}

func TestDeliverDirect(t *testing.T) {
	pub := &recordingPublisher{}
	r := newRouter(pub, &countingResolver{cache: map[string]string{}})

	require.NoError(t, r.DeliverDirect(context.Background(), models.RobotUpdate{RobotCode: "RB-0001", Warehouse: "WH-1"}))
	assert.Equal(t, []string{"warehouse/robots", "warehouse/robots/RB-0001"}, pub.topics())
}
