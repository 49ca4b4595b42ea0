package enums

import "testing"

func TestOrderStatusTerminal(t *testing.T) {
	for _, status := range validOrderStatuses {
		want := status == OrderStatusDelivered || status == OrderStatusCancelled
		if got := status.IsTerminal(); got != want {
			t.Fatalf("%s: expected terminal=%v got %v", status, want, got)
		}
	}
}

func TestParseOrderStatusRejectsUnknown(t *testing.T) {
	if _, err := ParseOrderStatus("shipped"); err == nil {
		t.Fatal("expected error for unknown status")
	}
	got, err := ParseOrderStatus("ready_for_delivery")
	if err != nil || got != OrderStatusReadyForDelivery {
		t.Fatalf("unexpected parse result %q %v", got, err)
	}
}

func TestDeliveryAreaProcessingOrder(t *testing.T) {
	want := []DeliveryArea{DeliveryAreaNorth, DeliveryAreaEast, DeliveryAreaSouth, DeliveryAreaWest}
	if len(DeliveryAreaProcessingOrder) != len(want) {
		t.Fatalf("unexpected area count %d", len(DeliveryAreaProcessingOrder))
	}
	for i, area := range want {
		if DeliveryAreaProcessingOrder[i] != area {
			t.Fatalf("position %d: expected %s got %s", i, area, DeliveryAreaProcessingOrder[i])
		}
	}
}

func TestActorRoleIsStaff(t *testing.T) {
	cases := map[ActorRole]bool{
		ActorRoleStaff:    true,
		ActorRoleManager:  true,
		ActorRoleAdmin:    true,
		ActorRoleDriver:   false,
		ActorRoleCustomer: false,
		ActorRoleSystem:   false,
	}
	for role, want := range cases {
		if got := role.IsStaff(); got != want {
			t.Fatalf("%s: expected %v got %v", role, want, got)
		}
	}
}

func TestParseRejectsNearMisses(t *testing.T) {
	if got, err := ParseOutboxEventType("order_created"); err != nil || got != EventOrderCreated {
		t.Fatalf("expected order_created, got %q %v", got, err)
	}
	for _, raw := range []string{"", "ORDER_CREATED", " order_created"} {
		if _, err := ParseOutboxEventType(raw); err == nil {
			t.Fatalf("%q should not parse", raw)
		}
	}
	if _, err := ParseDeliveryArea("central"); err == nil || err.Error() != `invalid delivery area "central"` {
		t.Fatalf("unexpected error %v", err)
	}
}
