package firestore

import (
	"cloud.google.com/go/firestore"

	shared "github.com/trackstack/server/pkg"
	"github.com/trackstack/server/pkg/types"
)

type Client struct {
	fs *firestore.Client
}

func NewClient(client *firestore.Client) *Client {
	return &Client{fs: client}
}

func (c *Client) Close() error {
	return c.fs.Close()
}

// WebhookEvents is a top-level collection: webhook_events/{dedupKey}.
// The document id is the dedup key, so Create collides on redelivery.
func (c *Client) WebhookEvents() *Collection[types.WebhookEvent] {
	return &Collection[types.WebhookEvent]{
		Ref:           c.fs.Collection(shared.CollectionWebhookEvents),
		ToFirestore:   WebhookEventToFirestore,
		FromFirestore: FirestoreToWebhookEvent,
	}
}

// Integrations is a top-level collection: integrations/{provider}:{userId}
func (c *Client) Integrations() *Collection[types.Integration] {
	return &Collection[types.Integration]{
		Ref:           c.fs.Collection(shared.CollectionIntegrations),
		ToFirestore:   IntegrationToFirestore,
		FromFirestore: FirestoreToIntegration,
	}
}

// UserActivities are sub-collections of Users: users/{uid}/activities/{provider}:{externalId}
func (c *Client) UserActivities(userId string) *Collection[types.Activity] {
	return &Collection[types.Activity]{
		Ref:           c.fs.Collection(shared.CollectionUsers).Doc(userId).Collection(shared.SubcollectionActivities),
		ToFirestore:   ActivityToFirestore,
		FromFirestore: FirestoreToActivity,
	}
}

// UserGear are sub-collections of Users: users/{uid}/gear/{gearId}
func (c *Client) UserGear(userId string) *Collection[types.GearItem] {
	return &Collection[types.GearItem]{
		Ref:           c.fs.Collection(shared.CollectionUsers).Doc(userId).Collection(shared.SubcollectionGear),
		ToFirestore:   GearItemToFirestore,
		FromFirestore: FirestoreToGearItem,
	}
}

// UserGearLinks are sub-collections of Users: users/{uid}/gear_links/{activityId}
// Keyed by activity so an activity can never carry two links.
func (c *Client) UserGearLinks(userId string) *Collection[types.ActivityGearLink] {
	return &Collection[types.ActivityGearLink]{
		Ref:           c.fs.Collection(shared.CollectionUsers).Doc(userId).Collection(shared.SubcollectionGearLinks),
		ToFirestore:   GearLinkToFirestore,
		FromFirestore: FirestoreToGearLink,
	}
}
