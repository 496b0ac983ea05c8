package logger

// LogRequest logs an HTTP exchange against the price service.
func LogRequest(method, url string, statusCode int, durationMS float64) {
	fields := map[string]interface{}{
		"method":      method,
		"url":         url,
		"status_code": statusCode,
		"duration_ms": durationMS,
	}
	switch {
	case statusCode >= 500:
		GetLogger().ErrorWithFields("HTTP request server error", fields)
	case statusCode >= 400:
		GetLogger().WarnWithFields("HTTP request client error", fields)
	default:
		GetLogger().InfoWithFields("HTTP request completed", fields)
	}
}

// LogTask logs the outcome of one download task.
func LogTask(instrument, contract, frequency, outcome string, err error) {
	l := GetLogger().WithFields(map[string]interface{}{
		"instrument": instrument,
		"contract":   contract,
		"frequency":  frequency,
		"outcome":    outcome,
	})
	if err != nil {
		l.WithError(err).Error("task failed")
		return
	}
	l.Info("task finished")
}

// LogAllowance logs the server-reported daily download allowance.
func LogAllowance(used int, success bool) {
	GetLogger().WithFields(map[string]interface{}{
		"used":    used,
		"success": success,
	}).Info("download allowance checked")
}
