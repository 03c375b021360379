package jsapi

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestClassifySuccessWithPayload(t *testing.T) {
	out, err := Classify[ChooseImageResult](json.RawMessage(`{"errMsg":"chooseImage:ok","localIds":["wx1","wx2"]}`))
	if err != nil {
		t.Fatalf("classify failed: %v", err)
	}
	if out.Kind != OutcomeSuccess {
		t.Fatalf("expected success, got %s", out.Kind)
	}
	if len(out.Value.LocalIDs) != 2 || out.Value.LocalIDs[0] != "wx1" || out.Value.LocalIDs[1] != "wx2" {
		t.Fatalf("unexpected payload: %+v", out.Value)
	}
	if out.Message != "chooseImage:ok" {
		t.Fatalf("unexpected message: %q", out.Message)
	}
}

func TestClassifySuccessWithoutPayloadIsMalformed(t *testing.T) {
	_, err := Classify[ChooseImageResult](json.RawMessage(`{"errMsg":"chooseImage:ok"}`))
	if !errors.Is(err, ErrMalformedSuccess) {
		t.Fatalf("expected ErrMalformedSuccess, got %v", err)
	}
	_, err = Classify[UploadImageResult](json.RawMessage(`{"errMsg":"uploadImage:ok"}`))
	if !errors.Is(err, ErrMalformedSuccess) {
		t.Fatalf("expected ErrMalformedSuccess for upload, got %v", err)
	}
}

func TestClassifyUploadAcceptsEmptyServerID(t *testing.T) {
	out, err := Classify[UploadImageResult](json.RawMessage(`{"errMsg":"uploadImage:ok","serverId":""}`))
	if err != nil {
		t.Fatalf("empty serverId must be accepted, got %v", err)
	}
	if out.Kind != OutcomeSuccess || out.Value.ServerID != "" {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if _, err := Classify[UploadImageResult](json.RawMessage(`{"errMsg":"uploadImage:ok","serverId":null}`)); !errors.Is(err, ErrMalformedSuccess) {
		t.Fatalf("expected ErrMalformedSuccess for null serverId, got %v", err)
	}
	if _, err := Classify[UploadImageResult](json.RawMessage(`{"errMsg":"uploadImage:ok","serverId":7}`)); !errors.Is(err, ErrDecode) {
		t.Fatalf("expected ErrDecode for numeric serverId, got %v", err)
	}
}

func TestClassifyVoidSuccess(t *testing.T) {
	out, err := Classify[struct{}](json.RawMessage(`{"errMsg":"chooseWXPay:ok"}`))
	if err != nil {
		t.Fatalf("classify failed: %v", err)
	}
	if out.Kind != OutcomeSuccess {
		t.Fatalf("expected success, got %s", out.Kind)
	}
}

func TestClassifyCancelIgnoresPayload(t *testing.T) {
	for _, raw := range []string{
		`{"errMsg":"chooseImage:cancel"}`,
		`{"errMsg":"chooseImage:cancel","localIds":["wx1"]}`,
		`{"err_msg":"get_brand_wcpay_request:cancel"}`,
	} {
		out, err := Classify[ChooseImageResult](json.RawMessage(raw))
		if err != nil {
			t.Fatalf("%s: classify failed: %v", raw, err)
		}
		if out.Kind != OutcomeCancelled {
			t.Fatalf("%s: expected cancelled, got %s", raw, out.Kind)
		}
		if out.Value.LocalIDs != nil {
			t.Fatalf("%s: cancelled outcome must not carry payload", raw)
		}
		if out.Err() != nil {
			t.Fatalf("%s: cancelled is not an error, got %v", raw, out.Err())
		}
	}
}

func TestClassifyOtherSuffixesAreAPIErrors(t *testing.T) {
	for _, msg := range []string{
		"uploadImage:fail system error",
		"chooseImage:OK",
		"chooseImage:Cancel",
		"config:invalid signature",
		"",
		"ok",
	} {
		raw, _ := json.Marshal(map[string]any{"errMsg": msg, "localIds": []string{"x"}})
		out, err := Classify[ChooseImageResult](raw)
		if err != nil {
			t.Fatalf("%q: classify failed: %v", msg, err)
		}
		if out.Kind != OutcomeAPIError {
			t.Fatalf("%q: expected api error, got %s", msg, out.Kind)
		}
		var apiErr *APIError
		if !errors.As(out.Err(), &apiErr) || apiErr.Message != msg {
			t.Fatalf("%q: expected APIError with verbatim message, got %v", msg, out.Err())
		}
	}
}

func TestClassifyAcceptsErrMsgAlias(t *testing.T) {
	out, err := Classify[UploadImageResult](json.RawMessage(`{"err_msg":"uploadImage:ok","serverId":"srv1"}`))
	if err != nil {
		t.Fatalf("classify failed: %v", err)
	}
	if out.Kind != OutcomeSuccess || out.Value.ServerID != "srv1" {
		t.Fatalf("unexpected outcome: %+v", out)
	}
}

func TestClassifyDecodeErrors(t *testing.T) {
	for _, raw := range []string{
		``,
		`null`,
		`"chooseImage:ok"`,
		`{"localIds":["wx1"]}`,
		`{"errMsg":42}`,
		`{"errMsg":"chooseImage:ok","localIds":"wx1"}`,
	} {
		_, err := Classify[ChooseImageResult](json.RawMessage(raw))
		if !errors.Is(err, ErrDecode) {
			t.Fatalf("%q: expected ErrDecode, got %v", raw, err)
		}
	}
}

func TestOutcomeResultTreatsCancelAsAPIError(t *testing.T) {
	out := Outcome[UploadImageResult]{Kind: OutcomeCancelled, Message: "uploadImage:cancel"}
	_, err := out.Result()
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "uploadImage:cancel" {
		t.Fatalf("expected APIError for unexpected cancel, got %v", err)
	}
}

func TestCheckResultKeepsHostOrder(t *testing.T) {
	var res checkJSAPIResult
	raw := `{"checkResult":{"uploadImage":true,"chooseImage":false,"downloadImage":true}}`
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	want := []APICheck{{"uploadImage", true}, {"chooseImage", false}, {"downloadImage", true}}
	if len(res.CheckResult) != len(want) {
		t.Fatalf("unexpected result: %+v", res.CheckResult)
	}
	for i := range want {
		if res.CheckResult[i] != want[i] {
			t.Fatalf("entry %d: expected %+v, got %+v", i, want[i], res.CheckResult[i])
		}
	}
	if supported, listed := res.CheckResult.Supported("chooseImage"); supported || !listed {
		t.Fatalf("unexpected chooseImage lookup: supported=%v listed=%v", supported, listed)
	}
	if _, listed := res.CheckResult.Supported("scanQRCode"); listed {
		t.Fatal("scanQRCode must not be listed")
	}
}

func TestCheckResultRejectsNonObject(t *testing.T) {
	var res checkJSAPIResult
	if err := json.Unmarshal([]byte(`{"checkResult":["chooseImage"]}`), &res); err == nil {
		t.Fatal("expected error for array checkResult")
	}
	if err := json.Unmarshal([]byte(`{"checkResult":{"chooseImage":"yes"}}`), &res); err == nil {
		t.Fatal("expected error for non-bool entry")
	}
}
