package handlers

import (
	"github.com/cnap-oss/gridion/internal/extractor"
)

const debateDoneMessage = "🎬 토론이 끝났어요."

// threadWriter는 중계 프레임을 스레드 메시지로 보냅니다.
type threadWriter struct {
	session   Session
	channelID string
}

func newThreadWriter(session Session, channelID string) *threadWriter {
	return &threadWriter{session: session, channelID: channelID}
}

// WriteEvent implements relay.FrameWriter.
func (w *threadWriter) WriteEvent(ev extractor.Event) error {
	_, err := w.session.ChannelMessageSend(w.channelID, FormatEvent(ev))
	return err
}

// WriteDone implements relay.FrameWriter.
func (w *threadWriter) WriteDone() error {
	_, err := w.session.ChannelMessageSend(w.channelID, debateDoneMessage)
	return err
}
