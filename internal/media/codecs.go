package media

import (
	mediasoup "github.com/jiyeyuran/mediasoup-go/v2"
)

func ref[T any](v T) *T {
	return &v
}

// RouterMediaCodecs is the codec set every router advertises: Opus, VP8,
// VP9 (profile 0 and 2), H.264 (baseline 3.1 and main 4.0) and AV1. The
// order matters, clients that do not force a codec get the first matching
// one.
func RouterMediaCodecs() []*mediasoup.RtpCodecCapability {
	return []*mediasoup.RtpCodecCapability{
		{
			Kind:      mediasoup.MediaKindAudio,
			MimeType:  "audio/opus",
			ClockRate: 48000,
			Channels:  2,
		},
		{
			Kind:      mediasoup.MediaKindVideo,
			MimeType:  "video/VP8",
			ClockRate: 90000,
			Parameters: mediasoup.RtpCodecSpecificParameters{
				XGoogleStartBitrate: 1000,
			},
		},
		{
			Kind:      mediasoup.MediaKindVideo,
			MimeType:  "video/VP9",
			ClockRate: 90000,
			Parameters: mediasoup.RtpCodecSpecificParameters{
				ProfileId:           0,
				XGoogleStartBitrate: 1000,
			},
		},
		{
			Kind:      mediasoup.MediaKindVideo,
			MimeType:  "video/VP9",
			ClockRate: 90000,
			Parameters: mediasoup.RtpCodecSpecificParameters{
				ProfileId:           2,
				XGoogleStartBitrate: 1000,
			},
		},
		{
			Kind:      mediasoup.MediaKindVideo,
			MimeType:  "video/h264",
			ClockRate: 90000,
			Parameters: mediasoup.RtpCodecSpecificParameters{
				ProfileLevelId:        "42e01f",
				PacketizationMode:     1,
				LevelAsymmetryAllowed: 1,
				XGoogleStartBitrate:   1000,
			},
		},
		{
			Kind:      mediasoup.MediaKindVideo,
			MimeType:  "video/h264",
			ClockRate: 90000,
			Parameters: mediasoup.RtpCodecSpecificParameters{
				ProfileLevelId:        "4d0032",
				PacketizationMode:     1,
				LevelAsymmetryAllowed: 1,
				XGoogleStartBitrate:   1000,
			},
		},
		{
			Kind:      mediasoup.MediaKindVideo,
			MimeType:  "video/AV1",
			ClockRate: 90000,
		},
	}
}
