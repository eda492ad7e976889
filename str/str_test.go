package str

import "testing"

func TestUpperLowerFirst(t *testing.T) {
	if UpperFirst("users") != "Users" || UpperFirst("") != "" {
		t.Fatal("UpperFirst")
	}
	if LowerFirst("GetUser") != "getUser" || LowerFirst("") != "" {
		t.Fatal("LowerFirst")
	}
}

func TestCamelCase(t *testing.T) {
	cases := map[string]string{
		"created_at":    "CreatedAt",
		"user-accounts": "UserAccounts",
		"created":       "Created",
		"order_item-id": "OrderItemId",
	}
	for in, want := range cases {
		if got := CamelCase(in); got != want {
			t.Fatalf("CamelCase(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestKebabCase(t *testing.T) {
	cases := map[string]string{
		"UserAccounts": "user-accounts",
		"users":        "users",
		"user_admin":   "user-admin",
		"Orders":       "orders",
	}
	for in, want := range cases {
		if got := KebabCase(in); got != want {
			t.Fatalf("KebabCase(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestStrBytes(t *testing.T) {
	s := "hello"
	if BytesAsStr(StrAsBytes(s)) != s {
		t.Fatal("round trip")
	}
}
