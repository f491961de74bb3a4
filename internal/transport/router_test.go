package transport

import (
	"testing"

	"alert-console/internal/logging"
	"alert-console/internal/models"
)

func TestParseEnvelopeRejectsUnknownType(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{"alert", `{"type":"new_alert","data":{"id":"a1"}}`, false},
		{"detection", `{"type":"detection","camera_id":"cam-1","detections":[]}`, false},
		{"pong", `{"type":"pong"}`, false},
		{"unknown tag", `{"type":"frame_v2"}`, true},
		{"empty tag", `{"data":{}}`, true},
		{"not json", `{{{`, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseEnvelope([]byte(tc.raw))
			if (err != nil) != tc.wantErr {
				t.Errorf("ParseEnvelope(%s) err = %v, wantErr=%v", tc.raw, err, tc.wantErr)
			}
		})
	}
}

func TestAlertDispatchMultipleListeners(t *testing.T) {
	r := NewRouter(logging.NewNop())
	var first, second []string
	r.OnAlert(func(a models.AlertEvent) { first = append(first, a.ID) })
	r.OnAlert(func(a models.AlertEvent) { second = append(second, a.ID) })

	env, err := ParseEnvelope([]byte(`{"type":"new_alert","data":{"id":"a1","camera_id":"cam-1","weapon_type":"pistol","confidence":0.92}}`))
	if err != nil {
		t.Fatalf("ParseEnvelope: %v", err)
	}
	r.Dispatch(env)

	if len(first) != 1 || first[0] != "a1" {
		t.Errorf("first listener got %v, want [a1]", first)
	}
	if len(second) != 1 || second[0] != "a1" {
		t.Errorf("second listener got %v, want [a1]", second)
	}
}

func TestAlertSeverityDerived(t *testing.T) {
	r := NewRouter(logging.NewNop())
	var got models.AlertEvent
	r.OnAlert(func(a models.AlertEvent) { got = a })

	env, _ := ParseEnvelope([]byte(`{"type":"new_alert","data":{"id":"a1","weapon_type":"pistol"}}`))
	r.Dispatch(env)
	if got.Severity != models.SeverityCritical {
		t.Errorf("severity = %q, want critical", got.Severity)
	}

	env, _ = ParseEnvelope([]byte(`{"type":"new_alert","data":{"id":"a2","weapon_type":"knife"}}`))
	r.Dispatch(env)
	if got.Severity != models.SeverityHigh {
		t.Errorf("severity = %q, want high", got.Severity)
	}
}

func TestAlertWithoutIDDropped(t *testing.T) {
	r := NewRouter(logging.NewNop())
	calls := 0
	r.OnAlert(func(models.AlertEvent) { calls++ })

	env, _ := ParseEnvelope([]byte(`{"type":"new_alert","data":{"weapon_type":"knife"}}`))
	r.Dispatch(env)
	if calls != 0 {
		t.Errorf("handler called %d times for id-less alert, want 0", calls)
	}
}

func TestMalformedPayloadDropped(t *testing.T) {
	r := NewRouter(logging.NewNop())
	calls := 0
	r.OnAlert(func(models.AlertEvent) { calls++ })

	env, err := ParseEnvelope([]byte(`{"type":"new_alert","data":[1,2,3]}`))
	if err != nil {
		t.Fatalf("ParseEnvelope: %v", err)
	}
	r.Dispatch(env) // must not panic
	if calls != 0 {
		t.Errorf("handler called %d times for malformed alert, want 0", calls)
	}
}

func TestDisposerStopsDelivery(t *testing.T) {
	r := NewRouter(logging.NewNop())
	calls := 0
	dispose := r.OnAlert(func(models.AlertEvent) { calls++ })

	env, _ := ParseEnvelope([]byte(`{"type":"new_alert","data":{"id":"a1"}}`))
	r.Dispatch(env)
	dispose()
	r.Dispatch(env)

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDetectionKeyedPerCameraPlusWildcard(t *testing.T) {
	r := NewRouter(logging.NewNop())
	var cam1, cam2, all []string
	r.OnDetection("cam-1", func(f models.DetectionFrame) { cam1 = append(cam1, f.CameraID) })
	r.OnDetection("cam-2", func(f models.DetectionFrame) { cam2 = append(cam2, f.CameraID) })
	r.OnDetection(DetectionWildcard, func(f models.DetectionFrame) { all = append(all, f.CameraID) })

	env, _ := ParseEnvelope([]byte(`{"type":"detection","camera_id":"cam-1","frame_width":1920,"frame_height":1080,"detections":[{"class_name":"pistol","confidence":0.8,"x1":1,"y1":2,"x2":3,"y2":4}]}`))
	r.Dispatch(env)

	if len(cam1) != 1 {
		t.Errorf("cam-1 handler calls = %d, want 1", len(cam1))
	}
	if len(cam2) != 0 {
		t.Errorf("cam-2 handler calls = %d, want 0", len(cam2))
	}
	if len(all) != 1 {
		t.Errorf("wildcard handler calls = %d, want 1", len(all))
	}
}

func TestStatusAndCameraStatusDispatch(t *testing.T) {
	r := NewRouter(logging.NewNop())
	var snap models.StatusSnapshot
	var cam models.CameraStatus
	r.OnStatus(func(s models.StatusSnapshot) { snap = s })
	r.OnCameraStatus(func(c models.CameraStatus) { cam = c })

	env, _ := ParseEnvelope([]byte(`{"type":"status_update","data":{"cameras_online":4,"alerts_today":9,"system_status":"ok"}}`))
	r.Dispatch(env)
	if snap.CamerasOnline != 4 || snap.AlertsToday != 9 {
		t.Errorf("snapshot = %+v", snap)
	}

	env, _ = ParseEnvelope([]byte(`{"type":"camera_status","camera_id":"cam-3","status":"offline"}`))
	r.Dispatch(env)
	if cam.CameraID != "cam-3" || cam.Status != "offline" {
		t.Errorf("camera status = %+v", cam)
	}
}
