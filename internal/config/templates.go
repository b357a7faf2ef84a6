package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "launcher":
		return launcherTemplate, nil
	case "sdk":
		return sdkTemplate, nil
	case "handler":
		return HandlerTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const launcherTemplate = `name = "launcher"
addr = ":3000"
public_origin = "http://localhost:3000"
allowed_origins = ["http://localhost:8080"]
token = ""
tokens = ["temp-auth-key"]
token_ttl = ""
handshake_limit = "10s"
handler_script = ""
security_mode = "development"
tls_cert = ""
tls_key = ""
call_rate = 20.0
call_burst = 40
`

const sdkTemplate = `peer_url = "http://localhost:3000/launcher/ws"
trusted_origin = "http://localhost:3000"
host_origin = "http://localhost:8080"
transport = "websocket"
token = ""
handshake_timeout = "10s"
request_ids = true
security_mode = "development"
`

// HandlerTemplate is a peer handler script for the sandbox transport. It
// accepts one token and answers getStatus and echo locally.
const HandlerTemplate = `var TOKEN = "temp-auth-key";
var authed = false;

self.onmessage = function (event) {
  var msg = event.data;
  if (msg.type === "authenticate") {
    authed = msg.token === TOKEN;
    if (authed) {
      parent.postMessage({ type: "auth_success" }, event.origin);
    } else {
      parent.postMessage({ type: "auth_failure", reason: "Invalid token" }, event.origin);
    }
    return;
  }
  if (msg.type !== "api_call") {
    return;
  }
  var reply = { type: "api_result", originalAction: msg.action };
  if (msg.requestId) {
    reply.requestId = msg.requestId;
  }
  if (!authed) {
    reply.status = "error";
    reply.error = "not authenticated";
  } else if (msg.action === "getStatus") {
    reply.status = "ok";
    reply.result = { origin: location.origin, authenticated: true };
  } else if (msg.action === "echo") {
    reply.status = "ok";
    reply.result = msg.payload;
  } else {
    reply.status = "error";
    reply.error = "unknown action: " + msg.action;
  }
  parent.postMessage(reply, event.origin);
};
`
