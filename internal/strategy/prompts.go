package strategy

// Built-in strategy keys.
const (
	// KeyBioRubric scores against the reader's bio and a tiered rubric.
	KeyBioRubric = "bio-rubric"

	// KeyBioRubricRAG is the bio rubric enriched with similar voted items.
	KeyBioRubricRAG = "bio-rubric-rag"

	// KeyInterestsOnly drops the bio and scores against a prioritized
	// topic list.
	KeyInterestsOnly = "interests-only"

	// KeyBinary forces a clear send/skip decision instead of ambiguous
	// middle scores.
	KeyBinary = "binary"

	// KeyNegativeFirst leads with rejection criteria to reduce false
	// positives.
	KeyNegativeFirst = "negative-first"
)

// binaryPassFloor is the lower bound of the binary prompt's YES band.
const binaryPassFloor = 70

// noContextBlock substitutes for {context} when retrieval produced
// nothing, so templates render identically whether retrieval is disabled
// or just empty.
const noContextBlock = "(no prior feedback available)"

const scoreOutputFormat = `Return a JSON array, one entry per item:
[{"item_id": "...", "score": 85, "reason": "..."}]

Items to score:
{items_json}`

const readerProfile = `You are curating a content feed for an Ethereum protocol researcher working on based rollups (TEE proofs, L1-L2 synchronous composability) and preconfirmations.

Background: former protocol engineer focused on Account Abstraction, order flow auctions, and rollup security; prior core-protocol work on Ethereum consensus. Writes and speaks on rollup architecture.`

const rubricTiers = `Score each item 0-100 based on relevance to the reader's work and interests:

95-100: Directly about the reader's active work
  - Based rollups, preconfirmations, sequencer design
  - TEE-based proving, L1-L2 composability

85-94: Core research areas
  - MEV, OFA (Order Flow Auctions), PBS, block building
  - Account Abstraction (ERC-4337, ERC-7702, wallet design)
  - Censorship resistance, force inclusion mechanisms
  - ZK proofs, Data Availability (DAS, EIP-4844, blob markets)

70-84: Adjacent technical content
  - L2 architecture deep-dives (OP Stack, Arbitrum, StarkNet, ZKsync)
  - Ethereum CL/EL protocol changes, EIPs, hard fork planning
  - Smart contract security, audit findings, exploit analysis
  - Rollup economics, security models, escape hatches

50-69: Peripheral interest
  - General Ethereum ecosystem news (surface-level)
  - Crypto governance and DAO mechanics

0-49: Not relevant - skip
  - Price speculation, trading signals, market commentary
  - NFT drops, meme coins, celebrity opinions
  - Engagement farming, giveaways, generic "gm" posts
  - Product marketing without technical substance`

const promptBioRubric = readerProfile + `

` + rubricTiers + `

` + scoreOutputFormat

const promptBioRubricRAG = readerProfile + `

## User Feedback Context
Based on past feedback, here are similar items the user has voted on:

{context}

Use this context to adjust your scores. If a new item is similar to liked items, boost its score. If similar to disliked items, lower it.

` + rubricTiers + `

` + scoreOutputFormat

const promptInterestsOnly = `Score these items 0-100 for an Ethereum protocol researcher with these interests (highest to lowest priority):

Must-see (90-100):
- Based rollups, preconfirmations, sequencer design
- TEE-based proving, L1-L2 synchronous composability

High interest (75-89):
- MEV, OFA, PBS, block building
- Account Abstraction (ERC-4337, ERC-7702)
- Censorship resistance, force inclusion
- ZK proofs, Data Availability, blob markets
- L2 architecture (OP Stack, Arbitrum, StarkNet, ZKsync)
- Ethereum protocol changes, EIPs, hard forks
- Smart contract security, audits, exploits

Some interest (50-74):
- General Ethereum ecosystem news
- Crypto governance, DAOs
- Developer tooling, infrastructure

Skip (0-49):
- Price talk, trading, market commentary
- NFTs, meme coins, celebrity takes
- Engagement farming, giveaways, "gm" posts
- Marketing without technical substance

` + scoreOutputFormat

const promptBinary = `You are filtering a feed for an Ethereum protocol researcher focused on based rollups, preconfirmations, TEE proving, L1-L2 composability, MEV/PBS, Account Abstraction, ZK proofs, data availability, and L2 architecture.

For each item, decide: would this person want to read it? Be selective - only pass items with genuine technical substance or directly relevant news.

Score 70-100 for YES (worth reading), 0-49 for NO (skip).
Avoid scores in 50-69 - commit to a clear decision.

Scoring guide:
- 90-100: Directly about their active work or breakthrough research in their core areas
- 70-89: Solid technical content in adjacent areas they'd learn from
- 0-49: Everything else (surface-level news, marketing, price talk, drama, engagement farming)

` + scoreOutputFormat

const promptNegativeFirst = `You are aggressively filtering a content feed. Most items should be SKIPPED. Only pass items that an Ethereum protocol researcher would genuinely benefit from reading.

SKIP these (score 0-49):
- Price speculation, trading signals, market commentary
- NFT drops, meme coins, celebrity/influencer takes
- Engagement farming, giveaways, "gm" posts, motivational threads
- Product marketing without technical depth
- Drama, gossip, hot takes without substance
- Surface-level news that just restates announcements
- Anything you'd see on a generic crypto news feed

PASS these (score 70-100):
- Based rollups, preconfirmations, sequencer design, TEE proving
- L1-L2 composability research
- MEV, OFA, PBS, block building research
- Account Abstraction (ERC-4337, ERC-7702) developments
- ZK proofs, Data Availability, blob market analysis
- L2 architecture deep-dives with original insight
- Ethereum protocol changes, EIPs with technical detail
- Smart contract security findings, exploit analysis

When in doubt, SKIP. A false negative (missing a good item) is better than a false positive (sending noise).

` + scoreOutputFormat
