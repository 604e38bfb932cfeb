package test

import (
	"time"

	"github.com/Dawn-of-Light/DOLSharp-sub031/internal/event"
	"github.com/Dawn-of-Light/DOLSharp-sub031/internal/gateway"
	"github.com/Dawn-of-Light/DOLSharp-sub031/internal/testclient"
)

const wait = 2 * time.Second

// =============================================================================
// Group 1: Gateway
// =============================================================================

// TestGatewayConnection tests connecting and registering a player
func TestGatewayConnection(serverAddr string) TestResult {
	const testName = "Gateway Connection"

	client, player, err := connect(serverAddr, testName, "conn", 1, "fighter")
	if err != nil {
		return fail(testName, "Connection failed: %v", err)
	}
	defer client.Close()

	_, acked := client.WaitFor(gateway.TypeAck, player, "", wait)
	logResult(testName, acked, "Player registration acknowledged")
	if !acked {
		return fail(testName, "No ack for player registration. Got: %v", client.GetMessages())
	}
	return pass(testName, "Gateway accepts connections and player registration")
}

// TestInvalidEventRejected tests that a malformed event is answered with an error
func TestInvalidEventRejected(serverAddr string) TestResult {
	const testName = "Invalid Event Rejected"

	client, player, err := connect(serverAddr, testName, "invalid", 1, "fighter")
	if err != nil {
		return fail(testName, "Connection failed: %v", err)
	}
	defer client.Close()

	logAction(testName, "Sending whisper with no keyword...")
	if err := client.SendEvent(event.KindWhisper, player, "warden", ""); err != nil {
		return fail(testName, "Send failed: %v", err)
	}
	_, rejected := client.WaitFor(gateway.TypeError, player, "payload", wait)
	logResult(testName, rejected, "Gateway rejected the event")
	if !rejected {
		return fail(testName, "Expected an error message. Got: %v", client.GetMessages())
	}
	return pass(testName, "Invalid events are rejected at the gateway")
}

// =============================================================================
// Group 2: Quest flow
// =============================================================================

// TestQuestOffer tests that talking to the warden offers Bone Collector
func TestQuestOffer(serverAddr string) TestResult {
	const testName = "Quest Offer"

	client, player, err := connect(serverAddr, testName, "offer", 3, "fighter")
	if err != nil {
		return fail(testName, "Connection failed: %v", err)
	}
	defer client.Close()

	logAction(testName, "Talking to the warden...")
	client.SendEvent(event.KindInteract, player, "warden", "")
	msg, offered := client.WaitFor(gateway.TypeQuestOffer, player, "", wait)
	logResult(testName, offered, "Quest offered")
	if !offered {
		return fail(testName, "No quest offer. Got: %v", client.GetMessages())
	}
	if msg.Quest != "bone_collector" {
		return fail(testName, "Offered %q, want bone_collector", msg.Quest)
	}
	return pass(testName, "Warden offers Bone Collector")
}

// acceptBoneCollector accepts the warden's quest and takes the briefing
func acceptBoneCollector(client *testclient.TestClient, player string) {
	client.SendEvent(event.KindInteract, player, "warden", "")
	client.SendEvent(event.KindAcceptQuest, player, "warden", "bone_collector")
	client.SendEvent(event.KindWhisper, player, "warden", "bones")
}

// TestAcceptQuest tests accepting a quest and reaching step 2 by whisper
func TestAcceptQuest(serverAddr string) TestResult {
	const testName = "Accept Quest"

	client, player, err := connect(serverAddr, testName, "accept", 3, "fighter")
	if err != nil {
		return fail(testName, "Connection failed: %v", err)
	}
	defer client.Close()

	logAction(testName, "Whispering before accepting...")
	client.SendEvent(event.KindWhisper, player, "warden", "bones")
	time.Sleep(300 * time.Millisecond)
	if client.HasMessage(player, "Bring me proof") {
		return fail(testName, "Briefing fired without an active quest")
	}

	logAction(testName, "Accepting and whispering...")
	acceptBoneCollector(client, player)
	_, briefed := client.WaitFor(gateway.TypeTalk, player, "Bring me proof", wait)
	logResult(testName, briefed, "Briefing given after accepting")
	if !briefed {
		return fail(testName, "No briefing after accepting. Got: %v", client.GetMessages())
	}
	return pass(testName, "Accepted quest responds to its step-1 rule")
}

// TestRewardChoice tests kills, turn-in, the reward dialog and completion
func TestRewardChoice(serverAddr string) TestResult {
	const testName = "Reward Choice"

	client, player, err := connect(serverAddr, testName, "reward", 3, "fighter")
	if err != nil {
		return fail(testName, "Connection failed: %v", err)
	}
	defer client.Close()

	acceptBoneCollector(client, player)
	if _, ok := client.WaitFor(gateway.TypeTalk, player, "Bring me proof", wait); !ok {
		return fail(testName, "Quest not accepted. Got: %v", client.GetMessages())
	}

	logAction(testName, "Killing two skeletons...")
	client.SendEvent(event.KindEnemyKilled, player, "skeleton_1", "skeleton")
	client.SendEvent(event.KindEnemyKilled, player, "skeleton_2", "skeleton")

	logAction(testName, "Handing in the token...")
	client.SendEvent(event.KindGiveItem, player, "warden", "warden_token")
	msg, ok := client.WaitFor(gateway.TypeRewardChoice, player, "", wait)
	logResult(testName, ok, "Reward dialog shown")
	if !ok {
		return fail(testName, "No reward dialog. Got: %v", client.GetMessages())
	}
	if len(msg.Options) != 3 || msg.Choose != 1 {
		return fail(testName, "Reward dialog has %d options choose %d, want 3 choose 1", len(msg.Options), msg.Choose)
	}

	logAction(testName, "Choosing the oak shield...")
	client.SendEvent(event.KindChooseReward, player, "warden", "1")
	_, done := client.WaitFor(gateway.TypeSystem, player, "Quest complete: Bone Collector", wait)
	logResult(testName, done, "Quest completed")
	if !done {
		return fail(testName, "Quest not completed. Got: %v", client.GetMessages())
	}
	return pass(testName, "Kill goals, turn-in and reward choice complete the quest")
}

// TestQualificationSilent tests that an over-levelled player is not offered the quest
func TestQualificationSilent(serverAddr string) TestResult {
	const testName = "Qualification Silent"

	client, player, err := connect(serverAddr, testName, "veteran", 9, "fighter")
	if err != nil {
		return fail(testName, "Connection failed: %v", err)
	}
	defer client.Close()

	client.SendEvent(event.KindInteract, player, "warden", "")
	client.SendEvent(event.KindAcceptQuest, player, "warden", "bone_collector")
	if _, offered := client.WaitFor(gateway.TypeQuestOffer, player, "", time.Second); offered {
		return fail(testName, "Level 9 player was offered a level 1-5 quest")
	}
	if _, told := client.WaitFor(gateway.TypeSystem, player, "", 300*time.Millisecond); told {
		return fail(testName, "Qualification failure was reported: %v", client.GetMessages())
	}
	return pass(testName, "Unqualified players get no offer and no error")
}

// TestScoutQuest tests a quest given and finished by rules alone
func TestScoutQuest(serverAddr string) TestResult {
	const testName = "Scout Quest"

	client, player, err := connect(serverAddr, testName, "scout", 2, "fighter")
	if err != nil {
		return fail(testName, "Connection failed: %v", err)
	}
	defer client.Close()

	logAction(testName, "Asking about the lantern...")
	client.SendEvent(event.KindWhisper, player, "warden", "lantern")
	logAction(testName, "Entering the crypt...")
	client.SendEvent(event.KindAreaEnter, player, "crypt", "")

	_, chill := client.WaitFor(gateway.TypeTalk, player, "chill", wait)
	_, done := client.WaitFor(gateway.TypeSystem, player, "Quest complete: Lantern Run", wait)
	logResult(testName, chill, "Global crypt rule fired")
	logResult(testName, done, "Lantern Run completed")
	if !chill || !done {
		return fail(testName, "Crypt visit incomplete. Got: %v", client.GetMessages())
	}
	return pass(testName, "Scout goal and composable dispatch work end to end")
}

// TestAbandonQuest tests aborting an active quest
func TestAbandonQuest(serverAddr string) TestResult {
	const testName = "Abandon Quest"

	client, player, err := connect(serverAddr, testName, "abandon", 2, "fighter")
	if err != nil {
		return fail(testName, "Connection failed: %v", err)
	}
	defer client.Close()

	client.SendEvent(event.KindWhisper, player, "warden", "lantern")
	client.SendEvent(event.KindWhisper, player, "warden", "abandon")
	_, ok := client.WaitFor(gateway.TypeSystem, player, "You set the lantern down.", wait)
	logResult(testName, ok, "Abort message received")
	if !ok {
		return fail(testName, "No abort message. Got: %v", client.GetMessages())
	}
	return pass(testName, "Quests can be abandoned by rule")
}

// =============================================================================
// Group 3: Actions
// =============================================================================

// TestFailedToll tests that a failing action is reported and stops its rule
func TestFailedToll(serverAddr string) TestResult {
	const testName = "Failed Toll"

	client, player, err := connect(serverAddr, testName, "toll", 1, "fighter")
	if err != nil {
		return fail(testName, "Connection failed: %v", err)
	}
	defer client.Close()

	client.SendEvent(event.KindInteract, player, "ferryman", "")
	_, broke := client.WaitFor(gateway.TypeSystem, player, "You cannot afford that.", wait)
	logResult(testName, broke, "Insufficient funds reported")
	if !broke {
		return fail(testName, "No funds message. Got: %v", client.GetMessages())
	}
	if client.HasMessage(player, "Mind the water.") {
		return fail(testName, "Rule kept running after a failed action")
	}
	return pass(testName, "Failed actions stop their rule and tell the player")
}
