package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// trustedPhonesResponse is the minimal shape consumed from the trusted
// phone numbers listing.
type trustedPhonesResponse struct {
	TrustedPhoneNumbers []struct {
		ID            int    `json:"id"`
		NumberWithDialCode string `json:"numberWithDialCode"`
	} `json:"trustedPhoneNumbers"`
}

// runMFA drives the hsaVersion==2 sub-flow: fetch trusted devices, obtain a
// code via the configured CodeSource, validate it, then fetch a trust
// token. On the -21669 wrong-code server response it asks the CodeSource
// for another code and tries again.
func (a *Authenticator) runMFA(ctx context.Context) error {
	snap := a.sess.Snapshot()

	authHeaders := a.oauthHeaders(snap.SessionID, snap.Scnt)

	url := fmt.Sprintf("https://%s/listDevices", a.authHost)

	body, _, err := a.client.Do(ctx, transportGetRequest(url, authHeaders))
	if err != nil {
		return fmt.Errorf("auth: listing trusted devices: %w", err)
	}

	var phones trustedPhonesResponse
	_ = json.Unmarshal(body, &phones)

	last4 := ""
	if len(phones.TrustedPhoneNumbers) > 0 {
		n := phones.TrustedPhoneNumbers[0].NumberWithDialCode
		if len(n) >= 4 {
			last4 = n[len(n)-4:]
		}
	}

	for {
		code, err := a.codeSource.RequestCode(ctx, last4)
		if err != nil {
			return err
		}

		wrong, err := a.verifyTrustedDeviceCode(ctx, code, authHeaders)
		if err != nil {
			return err
		}

		if !wrong {
			break
		}

		a.logger.Info("incorrect MFA code, retrying")
	}

	trustURL := fmt.Sprintf("https://%s/2sv/trust", a.authHost)

	if _, _, err := a.client.Do(ctx, transportGetRequestWithHeaders(http.MethodPost, trustURL, authHeaders)); err != nil {
		return fmt.Errorf("auth: obtaining trust token: %w", err)
	}

	return nil
}

// verifyTrustedDeviceCode POSTs the six-digit code to
// verify/trusteddevice/securitycode and interprets the -21669 wrong-code
// response.
func (a *Authenticator) verifyTrustedDeviceCode(ctx context.Context, code string, authHeaders http.Header) (wrongCode bool, err error) {
	reqBody, _ := json.Marshal(struct {
		SecurityCode struct {
			Code string `json:"code"`
		} `json:"securityCode"`
	}{SecurityCode: struct {
		Code string `json:"code"`
	}{Code: code}})

	url := fmt.Sprintf("https://%s/verify/trusteddevice/securitycode", a.authHost)

	_, status, err := a.client.Do(ctx, transportPostRequest(url, string(reqBody), authHeaders))
	if err != nil {
		if strings.Contains(err.Error(), "-21669") {
			return true, nil
		}

		return false, err
	}

	if status >= 400 {
		return false, ErrMFAWrongCode
	}

	return false, nil
}

// run2SA drives the legacy hsaVersion==1 sub-flow against
// listDevices/sendVerificationCode/validateVerificationCode.
func (a *Authenticator) run2SA(ctx context.Context) error {
	snap := a.sess.Snapshot()
	authHeaders := a.oauthHeaders(snap.SessionID, snap.Scnt)

	listURL := fmt.Sprintf("https://%s/listDevices", a.setupHost)

	body, _, err := a.client.Do(ctx, transportGetRequest(listURL, authHeaders))
	if err != nil {
		return fmt.Errorf("auth: listing 2SA devices: %w", err)
	}

	var devices struct {
		Devices []struct {
			ID string `json:"id"`
		} `json:"devices"`
	}
	_ = json.Unmarshal(body, &devices)

	if len(devices.Devices) == 0 {
		return fmt.Errorf("auth: no 2SA-eligible devices returned")
	}

	deviceID := devices.Devices[0].ID

	sendURL := fmt.Sprintf("https://%s/sendVerificationCode", a.setupHost)
	sendBody, _ := json.Marshal(struct {
		DeviceID string `json:"deviceId"`
	}{DeviceID: deviceID})

	if _, _, err := a.client.Do(ctx, transportPostRequest(sendURL, string(sendBody), authHeaders)); err != nil {
		return fmt.Errorf("auth: requesting 2SA verification code: %w", err)
	}

	for {
		code, err := a.codeSource.RequestCode(ctx, "")
		if err != nil {
			return err
		}

		validateURL := fmt.Sprintf("https://%s/validateVerificationCode", a.setupHost)
		validateBody, _ := json.Marshal(struct {
			DeviceID        string `json:"deviceId"`
			SecurityCode    string `json:"securityCode"`
		}{DeviceID: deviceID, SecurityCode: code})

		_, status, err := a.client.Do(ctx, transportPostRequest(validateURL, string(validateBody), authHeaders))
		if err == nil && status < 400 {
			return nil
		}

		a.logger.Info("incorrect 2SA code, retrying")
	}
}

// oauthHeaders builds the X-Apple-OAuth-* plus scnt/session-id header set
// the MFA sub-flow endpoints require.
func (a *Authenticator) oauthHeaders(sessionID, scnt string) http.Header {
	h := make(http.Header)
	h.Set("X-Apple-OAuth-Client-Id", a.clientID)
	h.Set("X-Apple-OAuth-Client-Type", "firstPartyAuth")
	h.Set("X-Apple-OAuth-Response-Type", "code")
	h.Set("X-Apple-ID-Session-Id", sessionID)
	h.Set("scnt", scnt)
	h.Set("Content-Type", "application/json")
	h.Set("Accept", "application/json")

	return h
}
