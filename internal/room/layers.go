package room

import (
	"strings"

	mediasoup "github.com/jiyeyuran/mediasoup-go/v2"

	"github.com/confmesh/sfu/internal/api"
)

const orientationExtensionURI = "urn:3gpp:video-orientation"

// FilterRtpCapabilities returns a copy of caps without the video-orientation
// header extension. Rotation is rendered client-side; advertising the
// extension makes some mobile browsers rotate the encoded frames instead,
// which breaks recording.
func FilterRtpCapabilities(caps *mediasoup.RtpCapabilities) *mediasoup.RtpCapabilities {
	if caps == nil {
		return nil
	}
	filtered := *caps
	filtered.HeaderExtensions = nil
	for _, ext := range caps.HeaderExtensions {
		if string(ext.Uri) == orientationExtensionURI {
			continue
		}
		filtered.HeaderExtensions = append(filtered.HeaderExtensions, ext)
	}
	return &filtered
}

const (
	simulcastHighBitrate   = 5000_000
	simulcastMediumBitrate = 1000_000
	simulcastLowBitrate    = 500_000
	svcBitrate             = 5000_000
)

// normalizeEncodings rewrites the client-supplied video encodings to the
// server layer policy: three simulcast layers for VP8/H264 webcam video,
// a single SVC encoding for VP9/AV1, and a single DTX-enabled encoding for
// screen sharing. Audio and unknown codecs pass through untouched.
func normalizeEncodings(mediaType api.MediaType, params *mediasoup.RtpParameters, routerCaps *mediasoup.RtpCapabilities) {
	if params == nil {
		return
	}
	if mediaType != api.MediaTypeVideo && mediaType != api.MediaTypeScreen {
		return
	}

	codec := primaryVideoCodec(params, routerCaps)
	screen := mediaType == api.MediaTypeScreen

	switch codec {
	case "vp9", "av1":
		mode := "L3T3_KEY"
		if screen {
			mode = "L3T3"
		}
		enc := firstOrNew(params)
		enc.ScalabilityMode = mode
		enc.MaxBitrate = svcBitrate
		enc.Dtx = screen
		params.Encodings = []*mediasoup.RtpEncodingParameters{enc}
	case "vp8", "h264":
		if screen {
			enc := firstOrNew(params)
			enc.ScalabilityMode = "L1T3"
			enc.MaxBitrate = simulcastHighBitrate
			enc.Dtx = true
			params.Encodings = []*mediasoup.RtpEncodingParameters{enc}
			return
		}
		rids := ridsOf(params)
		params.Encodings = []*mediasoup.RtpEncodingParameters{
			{Rid: rids[0], ScalabilityMode: "L1T3", ScaleResolutionDownBy: 4, MaxBitrate: simulcastLowBitrate},
			{Rid: rids[1], ScalabilityMode: "L1T3", ScaleResolutionDownBy: 2, MaxBitrate: simulcastMediumBitrate},
			{Rid: rids[2], ScalabilityMode: "L1T3", ScaleResolutionDownBy: 1, MaxBitrate: simulcastHighBitrate},
		}
	}
}

// primaryVideoCodec names the codec the produce will use: the first video
// codec in the client parameters, falling back to the first one the router
// advertises.
func primaryVideoCodec(params *mediasoup.RtpParameters, routerCaps *mediasoup.RtpCapabilities) string {
	for _, c := range params.Codecs {
		if name, ok := videoCodecName(string(c.MimeType)); ok {
			return name
		}
	}
	if routerCaps != nil {
		for _, c := range routerCaps.Codecs {
			if name, ok := videoCodecName(string(c.MimeType)); ok {
				return name
			}
		}
	}
	return ""
}

func videoCodecName(mimeType string) (string, bool) {
	mimeType = strings.ToLower(mimeType)
	name, ok := strings.CutPrefix(mimeType, "video/")
	if !ok || name == "rtx" {
		return "", false
	}
	return name, true
}

func firstOrNew(params *mediasoup.RtpParameters) *mediasoup.RtpEncodingParameters {
	if len(params.Encodings) > 0 {
		return params.Encodings[0]
	}
	return &mediasoup.RtpEncodingParameters{}
}

// ridsOf keeps the client's rid labels when it already sent simulcast
// encodings so SDP answer matching holds; otherwise the conventional r0..r2.
func ridsOf(params *mediasoup.RtpParameters) [3]string {
	rids := [3]string{"r0", "r1", "r2"}
	for i := 0; i < len(params.Encodings) && i < 3; i++ {
		if params.Encodings[i].Rid != "" {
			rids[i] = params.Encodings[i].Rid
		}
	}
	return rids
}
