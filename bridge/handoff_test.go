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
	"math/rand"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/srediag/gwbridge/api"
	"github.com/srediag/gwbridge/internal/simengine"
	"github.com/srediag/gwbridge/pkg/frame"
)

type HandoffTestSuite struct {
	suite.Suite
	host *recordingHost
	b    *Bridge
}

func (s *HandoffTestSuite) SetupTest() {
	s.host = newRecordingHost()
	s.b = newTestBridge(s.T(), simengine.New(simengine.Options{}), s.host, nil)
}

func (s *HandoffTestSuite) violations(kind string) float64 {
	return counterValue(s.b.metrics.violations.WithLabelValues(kind))
}

func (s *HandoffTestSuite) TestWriteViewCoversPositionToLimit() {
	buf := frame.New(256)
	_, err := buf.Write(make([]byte, 40))
	s.Require().NoError(err)
	s.Require().NoError(buf.Flip())
	s.host.queueWrite(buf)

	tok, view := s.b.WriteReady()
	s.Require().NotEqual(api.NoToken, tok)
	s.Require().Len(view, 40)
	s.Require().True(buf.Lent())
	s.Require().ErrorIs(buf.SetPosition(1), frame.ErrLent)

	w, _ := s.b.Slots()
	s.Require().True(w.Occupied)
	s.Require().Equal(tok, w.Token)
	s.Require().Same(buf, w.Buffer)
	s.Require().Equal(float64(1), gaugeValue(s.b.metrics.occupied.WithLabelValues("write")))
}

func (s *HandoffTestSuite) TestNothingToWrite() {
	tok, view := s.b.WriteReady()
	s.Require().Equal(api.NoToken, tok)
	s.Require().Nil(view)
	w, _ := s.b.Slots()
	s.Require().False(w.Occupied)
}

func (s *HandoffTestSuite) TestWriteReacquireKeepsSlot() {
	first, second := frame.New(32), frame.New(32)
	s.host.queueWrite(first, second)

	tok, _ := s.b.WriteReady()
	s.Require().NotEqual(api.NoToken, tok)

	again, view := s.b.WriteReady()
	s.Require().Equal(api.NoToken, again)
	s.Require().Nil(view)
	s.Require().Equal(float64(1), s.violations(violationReacquire))
	s.Require().Len(s.host.errorLogs(), 1)

	w, _ := s.b.Slots()
	s.Require().Same(first, w.Buffer)
	s.Require().Equal(tok, w.Token)

	// the host was not asked while the slot was busy
	s.Require().Same(second, s.host.WriteReady())
}

func (s *HandoffTestSuite) TestWriteReturn() {
	buf := frame.New(64)
	s.host.queueWrite(buf)
	tok, _ := s.b.WriteReady()

	s.b.FrameReturn(tok)
	s.Require().Equal([]*frame.Buffer{buf}, s.host.returnedBufs())
	s.Require().False(buf.Lent())
	w, _ := s.b.Slots()
	s.Require().False(w.Occupied)
	s.Require().Equal(float64(1), counterValue(s.b.metrics.handoffs.WithLabelValues("write", "returned")))

	// a second return of the same token is unknown
	s.b.FrameReturn(tok)
	s.Require().Len(s.host.returnedBufs(), 1)
	s.Require().Equal(float64(1), s.violations(violationUnknownFrame))
}

func (s *HandoffTestSuite) TestUnknownReturnLeavesBothSlots() {
	wbuf, rbuf := frame.New(32), frame.New(32)
	s.host.queueWrite(wbuf)
	s.host.queueRead(rbuf)
	wtok, _ := s.b.WriteReady()
	rtok, _ := s.b.ReadReady()
	s.Require().NotEqual(wtok, rtok)

	s.b.FrameReturn(rtok + wtok + 100)
	s.b.FrameReturn(api.NoToken)

	w, r := s.b.Slots()
	s.Require().Equal(wtok, w.Token)
	s.Require().Same(wbuf, w.Buffer)
	s.Require().Equal(rtok, r.Token)
	s.Require().Same(rbuf, r.Buffer)
	s.Require().Empty(s.host.returnedBufs())
	s.Require().Equal(float64(2), s.violations(violationUnknownFrame))
	s.Require().Len(s.host.errorLogs(), 2)
}

func (s *HandoffTestSuite) TestReturnMatchesReadSlot() {
	wbuf, rbuf := frame.New(32), frame.New(32)
	s.host.queueWrite(wbuf)
	s.host.queueRead(rbuf)
	wtok, _ := s.b.WriteReady()
	rtok, _ := s.b.ReadReady()

	s.b.FrameReturn(rtok)
	s.Require().Equal([]*frame.Buffer{rbuf}, s.host.returnedBufs())
	w, r := s.b.Slots()
	s.Require().False(r.Occupied)
	s.Require().Equal(wtok, w.Token)
}

func (s *HandoffTestSuite) TestReadPath() {
	buf := frame.New(128)
	s.host.queueRead(buf)

	tok, view := s.b.ReadReady()
	s.Require().NotEqual(api.NoToken, tok)
	s.Require().Len(view, 128)
	n := copy(view, "incoming frame")

	s.b.FrameReceived(tok, n)
	got := s.host.receivedFrames()
	s.Require().Len(got, 1)
	s.Require().Same(buf, got[0].buf)
	s.Require().Equal(n, got[0].length)
	s.Require().False(buf.Lent())
	s.Require().Equal(0, buf.Position())
	s.Require().Equal(n, buf.Limit())
	s.Require().Equal("incoming frame", string(buf.View()))

	_, r := s.b.Slots()
	s.Require().False(r.Occupied)

	// delivered buffers belong to the host
	s.b.FrameReturn(tok)
	s.Require().Empty(s.host.returnedBufs())
}

func (s *HandoffTestSuite) TestReadBufferMustStartAtZero() {
	buf := frame.New(64)
	s.Require().NoError(buf.SetPosition(5))
	s.host.queueRead(buf)

	tok, view := s.b.ReadReady()
	s.Require().Equal(api.NoToken, tok)
	s.Require().Nil(view)
	s.Require().Equal([]*frame.Buffer{buf}, s.host.returnedBufs())
	s.Require().Equal(float64(1), s.violations(violationReadPosition))
	_, r := s.b.Slots()
	s.Require().False(r.Occupied)
}

func (s *HandoffTestSuite) TestFrameReceivedWithoutReadBuffer() {
	s.b.FrameReceived(7, 10)
	s.Require().Empty(s.host.receivedFrames())
	s.Require().Equal(float64(1), s.violations(violationNoReadBuffer))
}

func (s *HandoffTestSuite) TestFrameReceivedTokenNotMatched() {
	buf := frame.New(16)
	s.host.queueRead(buf)
	tok, _ := s.b.ReadReady()
	s.b.FrameReceived(tok+42, 4)
	s.Require().Len(s.host.receivedFrames(), 1)
	s.Require().Zero(s.violations(violationUnknownFrame))
}

func (s *HandoffTestSuite) TestFrameReceivedLengthClamped() {
	buf := frame.New(16)
	s.host.queueRead(buf)
	tok, _ := s.b.ReadReady()
	s.b.FrameReceived(tok, 100)
	got := s.host.receivedFrames()
	s.Require().Len(got, 1)
	s.Require().Equal(16, got[0].length)
	s.Require().Equal(float64(1), s.violations(violationFrameLength))
}

func (s *HandoffTestSuite) TestSharedStorageRejected() {
	buf := frame.New(64)
	s.host.queueWrite(buf)
	_, _ = s.b.WriteReady()

	alias, err := frame.Wrap(buf.Bytes(), 0, buf.Capacity())
	s.Require().NoError(err)
	s.host.queueRead(alias)
	tok, _ := s.b.ReadReady()
	s.Require().Equal(api.NoToken, tok)
	s.Require().Equal(float64(1), s.violations(violationAlias))

	s.host.queueRead(buf)
	tok, _ = s.b.ReadReady()
	s.Require().Equal(api.NoToken, tok)
	s.Require().Equal(float64(2), s.violations(violationAlias))
	s.Require().Empty(s.host.returnedBufs())
}

func (s *HandoffTestSuite) TestLentBufferRejected() {
	buf := frame.New(64)
	_, err := buf.Lend(64)
	s.Require().NoError(err)
	s.host.queueWrite(buf)
	tok, _ := s.b.WriteReady()
	s.Require().Equal(api.NoToken, tok)
	s.Require().Equal(float64(1), s.violations(violationLent))
}

func (s *HandoffTestSuite) TestTokensNeverReused() {
	seen := map[api.Token]bool{}
	for i := 0; i < 50; i++ {
		s.host.queueWrite(frame.New(8))
		tok, _ := s.b.WriteReady()
		s.Require().False(seen[tok])
		seen[tok] = true
		s.b.FrameReturn(tok)
	}
}

func (s *HandoffTestSuite) TestDebugModePanics() {
	conf := testConfig()
	conf.DebugMode = true
	host := newRecordingHost()
	b := newTestBridge(s.T(), simengine.New(simengine.Options{}), host, conf)

	host.queueWrite(frame.New(8), frame.New(8))
	_, _ = b.WriteReady()
	s.Require().Panics(func() { b.WriteReady() })

	// unknown returns are only reported
	s.Require().NotPanics(func() { b.FrameReturn(999) })
}

// TestWriteSlotSequences drives random acquire/return sequences against a
// model of the write slot.
func (s *HandoffTestSuite) TestWriteSlotSequences() {
	rnd := rand.New(rand.NewSource(42))
	var held api.Token
	returned := 0
	for i := 0; i < 2000; i++ {
		switch rnd.Intn(3) {
		case 0:
			s.host.queueWrite(frame.New(16))
			tok, _ := s.b.WriteReady()
			if held != api.NoToken {
				s.Require().Equal(api.NoToken, tok)
				_ = s.host.WriteReady()
			} else {
				s.Require().NotEqual(api.NoToken, tok)
				held = tok
			}
		case 1:
			if held == api.NoToken {
				continue
			}
			s.b.FrameReturn(held)
			held = api.NoToken
			returned++
		case 2:
			s.b.FrameReturn(api.Token(rnd.Int63n(1 << 40)))
		}
		w, _ := s.b.Slots()
		s.Require().Equal(held != api.NoToken, w.Occupied)
		s.Require().Equal(held, w.Token)
		s.Require().Len(s.host.returnedBufs(), returned)
	}
}

func TestHandoffTestSuite(t *testing.T) {
	suite.Run(t, new(HandoffTestSuite))
}
