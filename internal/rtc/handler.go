package rtc

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hraban/opus"
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v3"

	"github.com/Swooye/FiveNursings-sub000/internal/capture"
	"github.com/Swooye/FiveNursings-sub000/internal/config"
	"github.com/Swooye/FiveNursings-sub000/internal/healthlog"
	"github.com/Swooye/FiveNursings-sub000/internal/live"
	"github.com/Swooye/FiveNursings-sub000/internal/playback"
	"github.com/Swooye/FiveNursings-sub000/internal/session"
	"github.com/Swooye/FiveNursings-sub000/internal/tools"
)

// SessionDescription is a small DTO to avoid exposing webrtc types in transport.
type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

const recoveryAssistantPrompt = "You are a gentle recovery companion for oncology patients. " +
	"Speak briefly and warmly. When the user wants something recorded in their recovery log, " +
	"call log_recovery_event and keep the conversation going."

// Handler manages WebRTC peer connections, one live voice session each.
type Handler struct {
	cfg   config.Config
	store *healthlog.Store
}

// NewHandler creates a Handler. store may be nil when persistence is
// disabled (artifacts are then delivered to the client only).
func NewHandler(cfg config.Config, store *healthlog.Store) *Handler {
	return &Handler{cfg: cfg, store: store}
}

// newSetup builds the upstream session configuration.
func (h *Handler) newSetup() live.Setup {
	return live.Setup{
		Model: "models/" + h.cfg.GeminiModelID,
		GenerationConfig: &live.GenerationConfig{
			ResponseModalities: []string{"AUDIO"},
			SpeechConfig: &live.SpeechConfig{
				VoiceConfig: &live.VoiceConfig{
					PrebuiltVoiceConfig: &live.PrebuiltVoiceConfig{VoiceName: h.cfg.GeminiVoice},
				},
			},
		},
		SystemInstruction: &live.Content{Parts: []live.Part{{Text: recoveryAssistantPrompt}}},
		Tools: []live.Tool{{
			FunctionDeclarations: []live.FunctionDeclaration{tools.LogIntentDeclaration()},
		}},
		InputTranscription:  &struct{}{},
		OutputTranscription: &struct{}{},
	}
}

// HandleOffer accepts an SDP offer and returns an SDP answer.
func (h *Handler) HandleOffer(ctx context.Context, offer SessionDescription) (SessionDescription, error) {
	if offer.Type != "offer" || offer.SDP == "" {
		return SessionDescription{}, errors.New("invalid offer")
	}

	pc, outTrack, cleanup, err := h.createPeer()
	if err != nil {
		return SessionDescription{}, err
	}

	h.attachMediaHandlers(pc, outTrack)

	remoteOffer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offer.SDP}
	if err := pc.SetRemoteDescription(remoteOffer); err != nil {
		cleanup()
		return SessionDescription{}, err
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		cleanup()
		return SessionDescription{}, err
	}
	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		cleanup()
		return SessionDescription{}, err
	}
	<-gatherComplete
	local := pc.LocalDescription()
	if local == nil {
		cleanup()
		return SessionDescription{}, errors.New("no local description")
	}
	return SessionDescription{Type: "answer", SDP: local.SDP}, nil
}

// createPeer prepares a PeerConnection with codecs/interceptors and the
// assistant audio track. Media handlers are attached separately.
func (h *Handler) createPeer() (*webrtc.PeerConnection, *webrtc.TrackLocalStaticSample, func(), error) {
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, nil, nil, err
	}
	ir := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, ir); err != nil {
		return nil, nil, nil, err
	}
	api := webrtc.NewAPI(webrtc.WithMediaEngine(mediaEngine), webrtc.WithInterceptorRegistry(ir))

	pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: parseICEServers(h.cfg.ICEServersJSON)})
	if err != nil {
		return nil, nil, nil, err
	}
	outTrack, err := newOutTrack()
	if err != nil {
		_ = pc.Close()
		return nil, nil, nil, err
	}
	if _, err := pc.AddTrack(outTrack); err != nil {
		_ = pc.Close()
		return nil, nil, nil, err
	}
	return pc, outTrack, func() { _ = pc.Close() }, nil
}

// attachMediaHandlers wires the remote audio track and control channel into
// a session controller.
func (h *Handler) attachMediaHandlers(pc *webrtc.PeerConnection, outTrack *webrtc.TrackLocalStaticSample) {
	var sessPtr atomic.Pointer[session.Controller]
	var writerPtr atomic.Pointer[VoiceWriter]
	var controlPtr atomic.Pointer[webrtc.DataChannel]

	finish := func() {
		sess := sessPtr.Load()
		if sess == nil {
			return
		}
		artifact := sess.Stop()
		if artifact == nil {
			return
		}
		if h.store != nil {
			if err := h.store.Put(artifact); err != nil {
				log.Printf("[%s] store artifact: %v", sess.ID(), err)
			}
		}
		if dc := controlPtr.Load(); dc != nil && dc.ReadyState() == webrtc.DataChannelStateOpen {
			payload, _ := json.Marshal(map[string]any{"type": "log", "artifact": artifact})
			_ = dc.SendText(string(payload))
		}
	}

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		log.Printf("rtc: peer connection state: %s", state.String())
		switch state {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed, webrtc.PeerConnectionStateDisconnected:
			finish()
			if w := writerPtr.Load(); w != nil {
				w.Close()
			}
			_ = pc.Close()
		}
	})
	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		log.Printf("rtc: ICE state: %s", state.String())
	})

	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != "control" {
			return
		}
		controlPtr.Store(dc)
		dc.OnMessage(func(msg webrtc.DataChannelMessage) {
			cmd := strings.TrimSpace(strings.ToLower(string(msg.Data)))
			switch cmd {
			case "stop", "close":
				finish()
			case "cancel", "barge-in", "stop-speaking":
				if s := sessPtr.Load(); s != nil {
					s.Interrupt()
				}
			}
		})
	})

	pc.OnTrack(func(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if remote.Kind() != webrtc.RTPCodecTypeAudio {
			return
		}
		log.Printf("rtc: remote audio track received: codec=%s", remote.Codec().MimeType)

		writer, err := NewVoiceWriter(outTrack)
		if err != nil {
			log.Printf("rtc: opus encoder error: %v", err)
			return
		}
		writerPtr.Store(writer)

		stream := live.NewClient(h.cfg.GeminiAPIKey, h.newSetup())
		sess := session.New(stream, playback.NewWallClock(), writer, session.Hooks{
			OnCaption: func(text string) {
				if dc := controlPtr.Load(); dc != nil && dc.ReadyState() == webrtc.DataChannelStateOpen {
					payload, _ := json.Marshal(map[string]string{"type": "caption", "text": text})
					_ = dc.SendText(string(payload))
				}
			},
			OnState: func(s session.State) {
				if dc := controlPtr.Load(); dc != nil && dc.ReadyState() == webrtc.DataChannelStateOpen {
					payload, _ := json.Marshal(map[string]string{"type": "state", "state": s.String()})
					_ = dc.SendText(string(payload))
				}
			},
		})
		sessPtr.Store(sess)

		if err := sess.Start(newTrackSource(remote)); err != nil {
			log.Printf("[%s] session start error: %v", sess.ID(), err)
			writer.Close()
			return
		}

		// drain assistant tail once the session ends
		go func() {
			<-sess.Done()
			writer.FlushTail()
			time.AfterFunc(400*time.Millisecond, writer.Close)
		}()
	})
}

// trackSource adapts a remote WebRTC audio track to capture.Source: it
// decodes Opus RTP to 16kHz PCM and feeds frames to the recorder.
type trackSource struct {
	remote  *webrtc.TrackRemote
	stopped atomic.Bool
}

func newTrackSource(remote *webrtc.TrackRemote) *trackSource {
	return &trackSource{remote: remote}
}

func (t *trackSource) Start(onFrame func(samples []float32)) error {
	dec, err := opus.NewDecoder(capture.SampleRate, 1)
	if err != nil {
		return err
	}
	go func() {
		pcm := make([]int16, 1920)
		for !t.stopped.Load() {
			pkt, _, readErr := t.remote.ReadRTP()
			if readErr != nil {
				return
			}
			if len(pkt.Payload) == 0 {
				continue
			}
			n, decErr := dec.Decode(pkt.Payload, pcm)
			if decErr != nil {
				log.Printf("rtc: opus decode error: %v", decErr)
				continue
			}
			frame := make([]float32, n)
			for i := 0; i < n; i++ {
				frame[i] = float32(pcm[i]) / 32768.0
			}
			onFrame(frame)
		}
	}()
	return nil
}

func (t *trackSource) Stop() error {
	t.stopped.Store(true)
	return nil
}

func parseICEServers(iceJSON string) []webrtc.ICEServer {
	var servers []webrtc.ICEServer
	if err := json.Unmarshal([]byte(iceJSON), &servers); err == nil && len(servers) > 0 {
		return servers
	}
	return []webrtc.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}}
}
