/*
 * Copyright 2025 SREDiag Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package bridge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/srediag/gwbridge/api"
	"github.com/srediag/gwbridge/internal/simengine"
)

func TestPackStrings(t *testing.T) {
	names := []string{"CN", "device-01", "O", "", "emailAddress", "ops@example.com"}
	entries, err := packStrings(names)
	require.NoError(t, err)
	require.Len(t, entries, len(names)+1)
	assert.Nil(t, entries[len(names)])
	for i, n := range names {
		assert.Equal(t, append([]byte(n), 0), entries[i])
	}
	assert.Equal(t, names, api.GoStrings(entries))

	// entries do not alias the input or each other
	entries[0] = append(entries[0], 'x')
	assert.Equal(t, []byte("device-01\x00"), entries[1])

	empty, err := packStrings(nil)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{nil}, empty)

	_, err = packStrings([]string{"ok", "bad\x00value"})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestCString(t *testing.T) {
	b, err := cString("", true)
	require.NoError(t, err)
	assert.Nil(t, b)

	b, err = cString("", false)
	require.NoError(t, err)
	assert.Equal(t, []byte{0}, b)

	b, err = cString("8080", true)
	require.NoError(t, err)
	assert.Equal(t, []byte("8080\x00"), b)

	_, err = cString("a\x00b", false)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

type WorkerTestSuite struct {
	suite.Suite
	host   *recordingHost
	engine *simengine.Engine
	b      *Bridge
}

func (s *WorkerTestSuite) SetupTest() {
	s.host = newRecordingHost()
	s.engine = simengine.New(simengine.Options{})
	s.b = newTestBridge(s.T(), s.engine, s.host, nil)
}

func (s *WorkerTestSuite) TestGenerateCSRKeepsOrder() {
	names := []string{"CN", "alpha", "O", "beta", "OU", "gamma"}
	s.Require().NoError(s.b.GenerateCSR(names))
	s.Require().Equal([][]string{names}, s.engine.CSRs())
	s.Require().Equal(float64(1), counterValue(s.b.metrics.workerJobs.WithLabelValues("csr", "ok")))
}

func (s *WorkerTestSuite) TestGenerateCSREngineError() {
	err := s.b.GenerateCSR([]string{"odd"})
	s.Require().ErrorIs(err, ErrInvalidArgument)
	s.Require().Equal(float64(1), counterValue(s.b.metrics.workerJobs.WithLabelValues("csr", "error")))
}

func (s *WorkerTestSuite) TestGenerateKeypair() {
	s.b.GenerateKeypair()
	s.Require().Equal(1, s.engine.Keypairs())
}

func (s *WorkerTestSuite) TestDispatch() {
	s.Require().NoError(s.b.DispatchKeypair())
	s.Require().NoError(s.b.DispatchCSR([]string{"CN", "dispatched"}))
	s.Require().Eventually(func() bool {
		return s.engine.Keypairs() == 1 && len(s.engine.CSRs()) == 1
	}, 2*time.Second, 5*time.Millisecond)

	s.Require().ErrorIs(s.b.DispatchCSR([]string{"bad\x00"}), ErrInvalidArgument)
}

func (s *WorkerTestSuite) TestDispatchErrorReachesLog() {
	s.Require().NoError(s.b.DispatchCSR([]string{"odd"}))
	s.Require().Eventually(func() bool {
		return len(s.host.errorLogs()) == 1
	}, 2*time.Second, 5*time.Millisecond)
}

func (s *WorkerTestSuite) TestConfigureSocketRejectsUnknownCodes() {
	for _, sc := range []SocketConfig{
		{Port: 443, Family: api.Family('x'), Type: api.SockStream},
		{Port: 443, Family: api.Family(0), Type: api.SockStream},
		{Port: 443, Family: api.FamilyIPv4, Type: api.SocketType('q')},
		{Port: 443, Family: api.FamilyIPv6, Type: api.SocketType(0)},
	} {
		err := s.b.ConfigureSocket(sc)
		s.Require().ErrorIs(err, ErrInvalidArgument)
		s.Require().Equal(CodeInvalidArgument, CodeOf(err))
	}
	s.Require().Empty(s.engine.Sockets())
}

func (s *WorkerTestSuite) TestConfigureSocket() {
	s.Require().NoError(s.b.ConfigureSocket(SocketConfig{
		Port: 443, Family: api.FamilyIPv6, Type: api.SockDatagram, Protocol: 17,
	}))
	s.Require().NoError(s.b.ConfigureSocket(SocketConfig{
		Port: 0, Family: api.FamilyUnix, Type: api.SockStream,
		PeerAddress: "/run/gw.sock", PeerPort: "0",
	}))
	calls := s.engine.Sockets()
	s.Require().Len(calls, 2)
	s.Require().Nil(calls[0].PeerAddress)
	s.Require().Nil(calls[0].PeerPort)
	s.Require().Equal(17, calls[0].Protocol)
	s.Require().Equal([]byte("/run/gw.sock\x00"), calls[1].PeerAddress)
}

func (s *WorkerTestSuite) TestConfigureProxy() {
	s.Require().NoError(s.b.ConfigureProxy("proxy.local", "3128"))
	s.Require().Equal([][2]string{{"proxy.local", "3128"}}, s.engine.Proxies())
	s.Require().ErrorIs(s.b.ConfigureProxy("proxy\x00", "3128"), ErrInvalidArgument)
	s.Require().Len(s.engine.Proxies(), 1)
}

func TestWorkerTestSuite(t *testing.T) {
	suite.Run(t, new(WorkerTestSuite))
}
