package probe

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/egzakutacno/deeep-myria/internal/rpc"
	"github.com/egzakutacno/deeep-myria/internal/runner"
)

var testTarget = Target{
	Binary:      "myria-node",
	ServiceName: "myria-node",
	RPCPort:     8545,
	P2PPort:     30303,
	NetworkID:   1,
	ChainID:     "0x1",
	DataDir:     "/var/lib/myria-node",
}

func newTestSet(r *fakeRunner, c *fakeRPC) *Set {
	s := NewSet(r, c, testTarget, Timeouts{Local: time.Second, Network: time.Second}, nil)
	s.hostStats = func() (HostStats, error) {
		return HostStats{LoadAverage: [3]float64{0.5, 0.25, 0.1}, UptimeSeconds: 3600}, nil
	}
	return s
}

func run(t *testing.T, s *Set, name string) Result {
	t.Helper()
	p, found := s.Catalog()[name]
	require.True(t, found, name)
	res := p(context.Background())
	assert.Equal(t, name, res.Name)
	assert.NotNil(t, res.Detail)
	assert.False(t, res.MeasuredAt.IsZero())
	return res
}

func TestProcessProbe(t *testing.T) {
	t.Run("running", func(t *testing.T) {
		r := &fakeRunner{outcomes: map[string]runner.Outcome{"pgrep -x myria-node": ok("811\n812\n")}}
		res := run(t, newTestSet(r, &fakeRPC{}), NameProcess)

		assert.True(t, res.OK)
		assert.Equal(t, 811, res.Detail["pid"])
		assert.Equal(t, []int{811, 812}, res.Detail["pids"])
	})

	t.Run("own children excluded", func(t *testing.T) {
		r := &fakeRunner{outcomes: map[string]runner.Outcome{
			"pgrep -x myria-node": ok("811\n4243\n"),
			"pgrep -P 4242":       ok("4243\n"),
		}}
		s := newTestSet(r, &fakeRPC{})
		s.self = 4242
		res := run(t, s, NameProcess)

		assert.True(t, res.OK)
		assert.Equal(t, 811, res.Detail["pid"])
		assert.Equal(t, []int{811}, res.Detail["pids"])
	})

	t.Run("only own children", func(t *testing.T) {
		r := &fakeRunner{outcomes: map[string]runner.Outcome{
			"pgrep -x myria-node": ok("4243\n"),
			"pgrep -P 4242":       ok("4243\n"),
		}}
		s := newTestSet(r, &fakeRPC{})
		s.self = 4242
		res := run(t, s, NameProcess)

		assert.False(t, res.OK)
		assert.Equal(t, "not_running", res.Detail["status"])
	})

	t.Run("long binary path", func(t *testing.T) {
		r := &fakeRunner{outcomes: map[string]runner.Outcome{
			"pgrep -f /opt/myria/bin/myria-node-mainnet": ok("900\n"),
		}}
		target := testTarget
		target.Binary = "/opt/myria/bin/myria-node-mainnet"
		s := NewSet(r, &fakeRPC{}, target, Timeouts{Local: time.Second, Network: time.Second}, nil)
		res := run(t, s, NameProcess)

		assert.True(t, res.OK)
		assert.Equal(t, 900, res.Detail["pid"])
	})

	t.Run("no match", func(t *testing.T) {
		r := &fakeRunner{outcomes: map[string]runner.Outcome{"pgrep -x myria-node": {ExitCode: exitCode(1)}}}
		res := run(t, newTestSet(r, &fakeRPC{}), NameProcess)

		assert.False(t, res.OK)
		assert.Equal(t, "not_running", res.Detail["status"])
		assert.NotEmpty(t, res.Error)
	})

	t.Run("timeout", func(t *testing.T) {
		r := &fakeRunner{outcomes: map[string]runner.Outcome{"pgrep -x myria-node": {Err: runner.ErrTimeout, TimedOut: true}}}
		res := run(t, newTestSet(r, &fakeRPC{}), NameProcess)

		assert.False(t, res.OK)
		assert.Equal(t, ErrTimeout, res.Error)
	})
}

func TestRPCProbe(t *testing.T) {
	t.Run("block number", func(t *testing.T) {
		c := &fakeRPC{responses: map[string]rpc.Response{"eth_blockNumber": result(`"0x1b4"`)}}
		res := run(t, newTestSet(&fakeRunner{}, c), NameRPC)

		assert.True(t, res.OK)
		assert.Equal(t, "0x1b4", res.Detail["blockNumber"])
		assert.Equal(t, uint64(436), res.Detail["block"])
	})

	t.Run("refused", func(t *testing.T) {
		res := run(t, newTestSet(&fakeRunner{}, &fakeRPC{}), NameRPC)

		assert.False(t, res.OK)
		assert.Equal(t, "refused", res.Detail["failure"])
		assert.Equal(t, "connection refused", res.Error)
	})

	t.Run("timeout", func(t *testing.T) {
		c := &fakeRPC{responses: map[string]rpc.Response{
			"eth_blockNumber": {Failure: rpc.FailureTimeout, Err: "timeout after 10ms"},
		}}
		res := run(t, newTestSet(&fakeRunner{}, c), NameRPC)

		assert.False(t, res.OK)
		assert.Equal(t, "timeout", res.Detail["failure"])
		assert.Contains(t, res.Error, "timeout")
	})
}

func TestPortsProbe(t *testing.T) {
	t.Run("both listening", func(t *testing.T) {
		r := &fakeRunner{outcomes: map[string]runner.Outcome{"netstat -tln": ok(netstatOut)}}
		res := run(t, newTestSet(r, &fakeRPC{}), NamePorts)

		assert.True(t, res.OK)
		assert.Equal(t, true, res.Detail["rpcPort"])
		assert.Equal(t, true, res.Detail["p2pPort"])
	})

	t.Run("p2p missing", func(t *testing.T) {
		out := "tcp        0      0 127.0.0.1:8545          0.0.0.0:*               LISTEN\n"
		r := &fakeRunner{outcomes: map[string]runner.Outcome{"netstat -tln": ok(out)}}
		res := run(t, newTestSet(r, &fakeRPC{}), NamePorts)

		assert.False(t, res.OK)
		assert.Equal(t, false, res.Detail["p2pPort"])
		assert.Contains(t, res.Error, "30303")
	})

	t.Run("netstat missing", func(t *testing.T) {
		res := run(t, newTestSet(&fakeRunner{}, &fakeRPC{}), NamePorts)
		assert.False(t, res.OK)
		assert.Contains(t, res.Error, "netstat failed")
	})
}

func TestNetworkProbe(t *testing.T) {
	t.Run("syncing with progress", func(t *testing.T) {
		c := &fakeRPC{responses: map[string]rpc.Response{
			"net_peerCount": result(`"0x19"`),
			"eth_syncing":   result(`{"startingBlock":"0x0","currentBlock":"0x10","highestBlock":"0x20"}`),
		}}
		res := run(t, newTestSet(&fakeRunner{}, c), NameNetwork)

		assert.True(t, res.OK)
		assert.Equal(t, uint64(25), res.Detail["peerCount"])
		assert.Equal(t, true, res.Detail["syncing"])
		assert.Equal(t, true, res.Detail["connected"])
		assert.Equal(t, 1, res.Detail["networkId"])
		assert.Equal(t, "0x1", res.Detail["chainId"])
		assert.Equal(t, map[string]any{
			"startingBlock": uint64(0),
			"currentBlock":  uint64(16),
			"highestBlock":  uint64(32),
		}, res.Detail["syncProgress"])
	})

	t.Run("synced", func(t *testing.T) {
		c := &fakeRPC{responses: map[string]rpc.Response{
			"net_peerCount": result(`"0x3"`),
			"eth_syncing":   result(`false`),
		}}
		res := run(t, newTestSet(&fakeRunner{}, c), NameNetwork)

		assert.True(t, res.OK)
		assert.Equal(t, false, res.Detail["syncing"])
		assert.NotContains(t, res.Detail, "syncProgress")
	})

	t.Run("one call failing stays ok", func(t *testing.T) {
		c := &fakeRPC{responses: map[string]rpc.Response{"eth_syncing": result(`false`)}}
		res := run(t, newTestSet(&fakeRunner{}, c), NameNetwork)

		assert.True(t, res.OK)
		assert.Equal(t, false, res.Detail["connected"])
		assert.Equal(t, uint64(0), res.Detail["peerCount"])
	})

	t.Run("both failing", func(t *testing.T) {
		res := run(t, newTestSet(&fakeRunner{}, &fakeRPC{}), NameNetwork)
		assert.False(t, res.OK)
		assert.Contains(t, res.Error, "net_peerCount")
	})
}

func TestResourcesProbe(t *testing.T) {
	r := &fakeRunner{outcomes: map[string]runner.Outcome{
		"df -h /var/lib/myria-node": ok("Filesystem Size Used Avail Use% Mounted on\n/dev/sda1 100G 42G 58G 42% /\n"),
		"free":                      ok("              total  used  free\nMem:  1000  250  750\n"),
	}}
	res := run(t, newTestSet(r, &fakeRPC{}), NameResources)

	assert.True(t, res.OK)
	assert.Equal(t, "42%", res.Detail["diskUsage"])
	assert.Equal(t, 25.0, res.Detail["memoryUsage"])
	assert.Equal(t, []float64{0.5, 0.25, 0.1}, res.Detail["loadAverage"])
	assert.Equal(t, int64(3600), res.Detail["hostUptimeSeconds"])

	t.Run("partial", func(t *testing.T) {
		r := &fakeRunner{outcomes: map[string]runner.Outcome{"free": ok("Mem: 4 1 3\n")}}
		s := newTestSet(r, &fakeRPC{})
		s.hostStats = func() (HostStats, error) { return HostStats{}, errors.New("unsupported") }
		res := run(t, s, NameResources)

		assert.False(t, res.OK)
		assert.Equal(t, 25.0, res.Detail["memoryUsage"])
		assert.NotContains(t, res.Detail, "diskUsage")
		assert.NotContains(t, res.Detail, "loadAverage")
		assert.Contains(t, res.Error, "df failed")
	})
}

func TestSystemdAndServiceProbes(t *testing.T) {
	r := &fakeRunner{outcomes: map[string]runner.Outcome{
		"systemctl is-system-running":    {ExitCode: exitCode(1), Stdout: "degraded\n"},
		"systemctl is-active myria-node": ok("active\n"),
	}}
	s := newTestSet(r, &fakeRPC{})

	sys := run(t, s, NameSystemd)
	assert.False(t, sys.OK)
	assert.Equal(t, "degraded", sys.Detail["state"])

	svc := run(t, s, NameService)
	assert.True(t, svc.OK)
	assert.Equal(t, "active", svc.Detail["state"])

	r.outcomes["systemctl is-system-running"] = ok("running\n")
	assert.True(t, run(t, s, NameSystemd).OK)

	delete(r.outcomes, "systemctl is-active myria-node")
	svc = run(t, s, NameService)
	assert.False(t, svc.OK)
	assert.Equal(t, "inactive", svc.Detail["state"])
}

func TestVersionProbe(t *testing.T) {
	r := &fakeRunner{outcomes: map[string]runner.Outcome{"myria-node --version": ok("myria-node 2.1.0\n")}}
	res := run(t, newTestSet(r, &fakeRPC{}), NameVersion)
	assert.True(t, res.OK)
	assert.Equal(t, "myria-node 2.1.0", res.Detail["version"])

	res = run(t, newTestSet(&fakeRunner{}, &fakeRPC{}), NameVersion)
	assert.False(t, res.OK)
	assert.Equal(t, "unknown", res.Detail["version"])
}

func TestNodeStatusProbe(t *testing.T) {
	r := &fakeRunner{outcomes: map[string]runner.Outcome{
		"myria-node --status": ok("Node ID: n-1\nCurrent Cycle Status: running\nCurrent Cycle Uptime: 5m\n"),
	}}
	res := run(t, newTestSet(r, &fakeRPC{}), NameNodeStatus)

	assert.True(t, res.OK)
	assert.Equal(t, "n-1", res.Detail["nodeId"])
	assert.Equal(t, "running", res.Detail["cycleStatus"])
	assert.Equal(t, "5m", res.Detail["cycleUptime"])
	require.Len(t, r.calls, 1)
	assert.Empty(t, r.calls[0].Input, "status must not send credentials")

	res = run(t, newTestSet(&fakeRunner{}, &fakeRPC{}), NameNodeStatus)
	assert.False(t, res.OK)
}

func TestGuard_RecoversPanics(t *testing.T) {
	p := Guard("boom", func(context.Context) Result { panic("kaboom") })

	res := p(context.Background())

	assert.Equal(t, "boom", res.Name)
	assert.False(t, res.OK)
	assert.Contains(t, res.Error, "kaboom")
}

func TestSet_Timeout(t *testing.T) {
	s := NewSet(&fakeRunner{}, &fakeRPC{}, testTarget, Timeouts{Local: 5 * time.Second, Network: 10 * time.Second}, nil)

	assert.Equal(t, 10*time.Second, s.Timeout(NameRPC))
	assert.Equal(t, 10*time.Second, s.Timeout(NameNetwork))
	assert.Equal(t, 5*time.Second, s.Timeout(NameProcess))
	assert.Equal(t, 5*time.Second, s.Timeout(NamePorts))
}
