package cmd

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/truebasic2011/mercury/internal/core"
)

// writeSynCapture writes n TCP SYN packets to a pcap file in dir.
func writeSynCapture(t *testing.T, dir string, n int) string {
	t.Helper()
	path := filepath.Join(dir, "in.pcap")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := pcapgo.NewWriter(f)
	require.NoError(t, w.WriteFileHeader(65535, layers.LinkTypeEthernet))

	for i := 0; i < n; i++ {
		eth := &layers.Ethernet{
			SrcMAC:       net.HardwareAddr{0, 1, 2, 3, 4, 5},
			DstMAC:       net.HardwareAddr{6, 7, 8, 9, 10, 11},
			EthernetType: layers.EthernetTypeIPv4,
		}
		ip := &layers.IPv4{
			Version:  4,
			TTL:      64,
			Protocol: layers.IPProtocolTCP,
			SrcIP:    net.IP{10, 0, 0, 1},
			DstIP:    net.IP{10, 0, 0, 2},
		}
		tcp := &layers.TCP{
			SrcPort: layers.TCPPort(40000 + i),
			DstPort: 443,
			SYN:     true,
			Window:  0xfaf0,
			Options: []layers.TCPOption{
				{OptionType: layers.TCPOptionKindMSS, OptionLength: 4, OptionData: []byte{0x05, 0xb4}},
			},
		}
		require.NoError(t, tcp.SetNetworkLayerForChecksum(ip))
		buf := gopacket.NewSerializeBuffer()
		opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
		require.NoError(t, gopacket.SerializeLayers(buf, opts, eth, ip, tcp))

		data := buf.Bytes()
		ci := gopacket.CaptureInfo{
			Timestamp:     time.Unix(1700000000+int64(i), 0),
			CaptureLength: len(data),
			Length:        len(data),
		}
		require.NoError(t, w.WritePacket(ci, data))
	}
	return path
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	root := NewRootCommand()
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func countPcapPackets(t *testing.T, path string) int {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	r, err := pcapgo.NewReader(f)
	require.NoError(t, err)
	n := 0
	for {
		_, _, err := r.ReadPacketData()
		if errors.Is(err, io.EOF) {
			return n
		}
		require.NoError(t, err)
		n++
	}
}

func TestRoot_ReplayWritesPcap(t *testing.T) {
	dir := t.TempDir()
	in := writeSynCapture(t, dir, 5)
	out := filepath.Join(dir, "out.pcap")

	_, stderr, err := execute(t, "-r", in, "-w", out, "-p", "2", "-v")
	require.NoError(t, err)

	assert.Equal(t, 10, countPcapPackets(t, out))
	assert.Contains(t, stderr, "packets written: 10")
}

func TestRoot_MultipleIsLoopAlias(t *testing.T) {
	dir := t.TempDir()
	in := writeSynCapture(t, dir, 4)
	out := filepath.Join(dir, "out.pcap")

	_, _, err := execute(t, "-r", in, "-w", out, "-m", "3")
	require.NoError(t, err)
	assert.Equal(t, 12, countPcapPackets(t, out))
}

func TestRoot_EmptyCaptureWithManyLoops(t *testing.T) {
	dir := t.TempDir()
	in := writeSynCapture(t, dir, 0)
	out := filepath.Join(dir, "out.pcap")

	done := make(chan error, 1)
	go func() {
		_, _, err := execute(t, "-r", in, "-w", out, "-p", "1000000000")
		done <- err
	}()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("replay of an empty capture did not finish")
	}
	assert.Equal(t, 0, countPcapPackets(t, out))
}

func TestRoot_FingerprintsToStdout(t *testing.T) {
	dir := t.TempDir()
	in := writeSynCapture(t, dir, 3)

	stdout, _, err := execute(t, "-r", in)
	require.NoError(t, err)

	sc := bufio.NewScanner(strings.NewReader(stdout))
	lines := 0
	for sc.Scan() {
		var rec map[string]any
		require.NoError(t, sonic.Unmarshal(sc.Bytes(), &rec))
		fps, ok := rec["fingerprints"].(map[string]any)
		require.True(t, ok, "record %s has no fingerprints", sc.Text())
		assert.Equal(t, "(faf0)(0205b4)", fps["tcp"])
		lines++
	}
	assert.Equal(t, 3, lines)
}

func TestRoot_TestPacket(t *testing.T) {
	stdout, _, err := execute(t, "-T", "-p", "4")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 4)
	var rec map[string]any
	require.NoError(t, sonic.Unmarshal([]byte(lines[0]), &rec))
	fps, ok := rec["fingerprints"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "(0303)(13011302c02bc02f)((0000)(000a))", fps["tls"])
	tls, ok := rec["tls"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "mercury.test", tls["server_name"])
}

func TestRoot_SelectProtocols(t *testing.T) {
	dir := t.TempDir()
	in := writeSynCapture(t, dir, 3)

	tlsOnly := filepath.Join(dir, "tls.pcap")
	_, _, err := execute(t, "-r", in, "-w", tlsOnly, "-s=tls")
	require.NoError(t, err)
	assert.Equal(t, 0, countPcapPackets(t, tlsOnly), "syn packets carry no tls metadata")

	anyMeta := filepath.Join(dir, "any.pcap")
	_, _, err = execute(t, "-r", in, "-w", anyMeta, "-s")
	require.NoError(t, err)
	assert.Equal(t, 3, countPcapPackets(t, anyMeta))

	_, _, err = execute(t, "validate", "-r", in, "-w", filepath.Join(dir, "x.pcap"), "--select=quic")
	assert.True(t, errors.Is(err, core.ErrConfigInvalid))
}

func TestRoot_ConflictingInputsFail(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "never.json")

	_, stderr, err := execute(t, "-c", "eth0", "-r", "in.pcap", "-f", out)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrConfigInvalid))
	assert.Contains(t, stderr, "usage: mercury")

	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr), "no output file may be created")
}

func TestRoot_MissingInputFails(t *testing.T) {
	_, _, err := execute(t, "-w", "out.pcap")
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrConfigInvalid))
}

func TestRoot_ExistingOutputRefused(t *testing.T) {
	dir := t.TempDir()
	in := writeSynCapture(t, dir, 2)
	out := filepath.Join(dir, "out.pcap")
	require.NoError(t, os.WriteFile(out, []byte("keep"), 0o644))

	_, _, err := execute(t, "-r", in, "-w", out)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrOutputOpen))

	b, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "keep", string(b))

	_, _, err = execute(t, "-r", in, "-w", out, "-o")
	require.NoError(t, err)
	assert.Equal(t, 2, countPcapPackets(t, out))
}

func TestValidate_PrintsSettings(t *testing.T) {
	stdout, _, err := execute(t, "validate", "--print", "-r", "in.pcap", "-f", "out.json", "-l", "500")
	require.NoError(t, err)

	head, body, ok := strings.Cut(stdout, "\n")
	require.True(t, ok)
	assert.Equal(t, "VALID (threads: 1, record kind: fingerprint)", head)

	var settings map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(body), &settings))
	input, ok := settings["input"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "in.pcap", input["read"])
	output, ok := settings["output"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "500", fmt.Sprint(output["limit"]))
}

func TestValidate_RejectsAdaptiveReplay(t *testing.T) {
	_, _, err := execute(t, "validate", "-r", "in.pcap", "-w", "out.pcap", "--adaptive")
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrConfigInvalid))
}
