package analyzer

import (
	"testing"

	"iris-osint/internal/domain/model"
)

func TestDefaultRegistryCoversAllTargetTypes(t *testing.T) {
	r := Default()
	for _, tt := range []model.TargetType{
		model.TargetDiscord, model.TargetEmail, model.TargetIP,
		model.TargetUsername, model.TargetDomain, model.TargetURL, model.TargetPhone,
	} {
		if _, ok := r.Lookup(tt); !ok {
			t.Fatalf("missing analyzer for %s", tt)
		}
	}
	if _, ok := r.Lookup("satellite"); ok {
		t.Fatal("unexpected analyzer for unknown type")
	}
	if got := len(r.Types()); got != 7 {
		t.Fatalf("expected 7 registered types, got %d", got)
	}
}

func TestAnalyzeEmailValidTarget(t *testing.T) {
	results := AnalyzeEmail("suspect@gmail.com")
	if len(results) != 3 {
		t.Fatalf("expected 3 tool results, got %d", len(results))
	}

	byTool := map[string]model.ToolResult{}
	for _, r := range results {
		if !r.Success {
			t.Fatalf("tool %s failed: %s", r.Tool, r.Error)
		}
		byTool[r.Tool] = r
	}

	if byTool["HaveIBeenPwned"].Confidence != 95 {
		t.Fatalf("unexpected pwned confidence: %d", byTool["HaveIBeenPwned"].Confidence)
	}
	if byTool["Domain Analysis"].Confidence != 90 {
		t.Fatalf("unexpected domain confidence: %d", byTool["Domain Analysis"].Confidence)
	}
	rep := byTool["Email Reputation"]
	if rep.Confidence != 80 {
		t.Fatalf("unexpected reputation confidence: %d", rep.Confidence)
	}
	if rep.Data["free_provider"] != true {
		t.Fatalf("gmail.com must be flagged as free provider: %+v", rep.Data)
	}
	if rep.Data["disposable"] != false {
		t.Fatalf("gmail.com must not be disposable: %+v", rep.Data)
	}
}

func TestAnalyzeEmailInvalidTarget(t *testing.T) {
	results := AnalyzeEmail("not-an-email")
	if len(results) != 1 {
		t.Fatalf("expected single failure result, got %d", len(results))
	}
	if results[0].Success || results[0].Error == "" {
		t.Fatalf("expected failure with message, got %+v", results[0])
	}
}

func TestAnalyzeIP(t *testing.T) {
	results := AnalyzeIP("195.154.10.20")
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	wantConfidence := map[string]int{
		"IP Geolocation": 90,
		"IP Reputation":  85,
		"Port Scanner":   75,
	}
	for _, r := range results {
		if !r.Success {
			t.Fatalf("tool %s failed: %s", r.Tool, r.Error)
		}
		if want, ok := wantConfidence[r.Tool]; !ok || r.Confidence != want {
			t.Fatalf("tool %s confidence %d", r.Tool, r.Confidence)
		}
	}

	bad := AnalyzeIP("999.1.2.3")
	if len(bad) != 1 || bad[0].Success {
		t.Fatalf("expected single failure for invalid ip, got %+v", bad)
	}
	v6 := AnalyzeIP("2001:db8::1")
	if len(v6) != 1 || v6[0].Success {
		t.Fatalf("ipv6 is out of scope, got %+v", v6)
	}
}

func TestAnalyzeUsernameProfileCap(t *testing.T) {
	// 命中平台数是随机的，多跑几轮验证画像结果上限。
	for i := 0; i < 50; i++ {
		results := AnalyzeUsername("ghostwriter")
		if len(results) < 1 || len(results) > 4 {
			t.Fatalf("expected 1..4 results, got %d", len(results))
		}
		if results[0].Tool != "Sherlock Username Search" || results[0].Confidence != 80 {
			t.Fatalf("unexpected lead result: %+v", results[0])
		}
		for _, r := range results[1:] {
			if r.Confidence != 70 {
				t.Fatalf("profile analysis confidence must be 70, got %+v", r)
			}
		}
	}
}

func TestAnalyzeURLSuspiciousElements(t *testing.T) {
	results := AnalyzeURL("https://bit.ly/login?next=http://192.168.1.1/admin")
	if len(results) != 1 || !results[0].Success {
		t.Fatalf("unexpected results: %+v", results)
	}
	flags, ok := results[0].Data["suspicious_elements"].([]string)
	if !ok {
		t.Fatalf("missing suspicious_elements: %+v", results[0].Data)
	}
	want := map[string]bool{
		"URL shortened":                true,
		"Login page":                   true,
		"IP address instead of domain": true,
	}
	for _, f := range flags {
		delete(want, f)
	}
	if len(want) != 0 {
		t.Fatalf("missing flags: %v (got %v)", want, flags)
	}

	bad := AnalyzeURL("notaurl")
	if len(bad) != 1 || bad[0].Success {
		t.Fatalf("expected failure for bare word, got %+v", bad)
	}
}

func TestAnalyzeDomainAndPhone(t *testing.T) {
	dom := AnalyzeDomain("Example.COM")
	if len(dom) != 1 || !dom[0].Success || dom[0].Confidence != 95 {
		t.Fatalf("unexpected domain results: %+v", dom)
	}
	if dom[0].Data["domain"] != "example.com" {
		t.Fatalf("domain must be lowercased: %+v", dom[0].Data)
	}

	phone := AnalyzePhone("+33 6 12 34 56 78")
	if len(phone) != 3 {
		t.Fatalf("expected 3 phone results, got %d", len(phone))
	}
	for _, r := range phone {
		if !r.Success {
			t.Fatalf("tool %s failed: %s", r.Tool, r.Error)
		}
	}

	bad := AnalyzePhone("call-me")
	if len(bad) != 1 || bad[0].Success {
		t.Fatalf("expected failure for invalid phone, got %+v", bad)
	}
}
