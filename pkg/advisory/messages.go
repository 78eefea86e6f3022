package advisory

// Message keys produced by the engine itself. Rule and knowledge tables
// carry their own keys.
const (
	MsgWeatherDataInsufficient = "weather.data_insufficient"

	MsgDiseaseImageUnclear   = "disease.image_unclear"
	MsgDiseaseNoGuidance     = "disease.no_guidance"
	MsgDiseaseCommunityAlert = "disease.community_alert"
	MsgDiseaseHealthy        = "disease.healthy_plant"
	MsgDiseaseSendPhoto      = "disease.send_photo"

	MsgRouterRetry   = "router.retry"
	MsgRouterRestate = "router.restate"

	MsgGuideGeneral = "guide.general"
)

// NoticeMessageKey is the message key for a notice code.
func NoticeMessageKey(code NoticeCode) string {
	return "notice." + string(code)
}

// ErrorMessageKey is the message key for an engine error code.
func ErrorMessageKey(code ErrorCode) string {
	return "error." + string(code)
}

// EngineMessageKeys lists every key above, including notice and error keys.
func EngineMessageKeys() []string {
	keys := []string{
		MsgWeatherDataInsufficient,
		MsgDiseaseImageUnclear,
		MsgDiseaseNoGuidance,
		MsgDiseaseCommunityAlert,
		MsgDiseaseHealthy,
		MsgDiseaseSendPhoto,
		MsgRouterRetry,
		MsgRouterRestate,
		MsgGuideGeneral,
	}
	for _, c := range []NoticeCode{NoticeDataInsufficient, NoticeProviderUnavailable, NoticeLowConfidence, NoticeNoGuidance} {
		keys = append(keys, NoticeMessageKey(c))
	}
	for _, c := range []ErrorCode{CodeProviderUnavailable, CodeLocalizationMissing, CodeInvalidInput, CodeNoInput, CodeCancelled, CodeInternal} {
		keys = append(keys, ErrorMessageKey(c))
	}
	return keys
}
