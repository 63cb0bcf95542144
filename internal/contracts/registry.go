package contracts

// Family is a set of events shared by every contract deployed from the same source.
// Identifiers route exactly; Prefix routes any identifier of the form "<Prefix>:<name>".
type Family struct {
	Name        string
	Identifiers []string
	Prefix      string
	Events      []EventSpec
}

// Families returns the static registry of known contract families.
func Families() []Family {
	return []Family{
		athleteRegistry,
		collegeRegistry,
		korDirectory,
		proTeamsRegistry,
		athletePaymentManager,
		teamStaking,
		collectibleFaucet,
		burnAuction,
		collectibleNfts,
		draftController,
		draftPickNfts,
		ringSeriesManager,
		proRingSeriesNft,
		lpManager,
		nilCoinFaucet,
		claimManagerAA,
		claimManagerBA,
		claimManagerNFTP,
		erc20Transfers,
		erc1155Transfers,
	}
}

// variants expands a base identifier into its league variants.
func variants(base string, suffixes ...string) []string {
	out := make([]string, 0, len(suffixes))
	for _, s := range suffixes {
		out = append(out, base+s)
	}
	return out
}

var (
	athleteRegistry = Family{
		Name:        "athleteRegistry",
		Identifiers: []string{"athleteRegistry"},
		Events: []EventSpec{
			mustSpec("ActiveYearAdded(uint256 indexed _athleteId, uint16 indexed _year)", "athleteActiveYearAdded"),
			mustSpec("AthleteAdded(uint256 indexed _athleteId, bool indexed _isFootball, string _displayName, string _lastName, string _middleName, string _firstName)", "athleteAdded"),
			mustSpec("AthleteNameChanged(uint256 indexed _athleteId, string _displayName, string _lastName, string _middleName, string _firstName)", "athleteNameChanged"),
			mustSpec("AthleteCollegeChanged(uint256 indexed _athleteId, uint256 indexed _collegeId, uint256 indexed _jerseyNumber, uint16 _position)", "athleteCollegeChanged"),
			mustSpec("AthleteProTeamChanged(uint256 indexed _athleteId, uint256 indexed _proTeamId, uint256 indexed _jerseyNumber, uint16 _position)", "athleteProTeamChanged"),
		},
	}

	collegeRegistry = Family{
		Name:        "collegeRegistry",
		Identifiers: []string{"collegeRegistry"},
		Events: []EventSpec{
			mustSpec("CollegeAdded(uint256 indexed _collegeId, string _name, string _conference, string _mascot, uint16 _tier, uint16 _royalty)", "collegeAdded"),
			mustSpec("CollegeChanged(uint256 indexed _collegeId, string _name, string _conference, string _mascot, uint16 _royalty)", "collegeChanged"),
			mustSpec("TierChanged(uint256 indexed _collegeId, uint256 indexed _tier)", "collegeTierChanged"),
		},
	}

	korDirectory = Family{
		Name:        "korDirectory",
		Identifiers: []string{"korDirectory"},
		Events: []EventSpec{
			mustSpec("DraftControllerAdded(uint16 indexed _year, address indexed _address, bool indexed _isFootball)", "draftControllerAdded"),
			mustSpec("RingSeriesTokenContractAdded(uint16 indexed _year, address indexed _address)", "ringSeriesTokenContractAdded"),
			mustSpec("CollectibleSeriesFaucetContractAdded(uint16 indexed _year, address indexed _address, bool indexed _isFootball)", "collectibleSeriesFaucetContractAdded"),
			mustSpec("CollectibleSeriesTokenContractAdded(uint16 indexed _year, address indexed _address)", "collectibleSeriesTokenContractAdded"),
		},
	}

	// proRegistry is the identifier older deployments were provisioned under.
	proTeamsRegistry = Family{
		Name:        "proTeamsRegistry",
		Identifiers: []string{"proTeamsRegistry", "proRegistry"},
		Events: []EventSpec{
			mustSpec("TeamAdded(uint256 indexed _teamId, bool indexed _isFootball, string _name, string _mascot, string _conference)", "proTeamAdded"),
			mustSpec("TeamChanged(uint256 indexed _teamId, bool indexed _isFootball, string _name, string _mascot, string _conference)", "proTeamChanged"),
		},
	}

	athletePaymentManager = Family{
		Name:        "athletePaymentManager",
		Identifiers: []string{"athletePaymentManager"},
		Events: []EventSpec{
			mustSpec("PaymentReceived(uint256 indexed _paymentId, uint256 indexed _athleteId, address indexed _paymentToken, uint256 _amount, uint256 _balance)", "athletePaymentReceived"),
			mustSpec("PaymentDisbursed(uint256 indexed _disbursementId, uint256 indexed _athleteId, address indexed _paymentToken, address _disbursementAddress, uint256 _amount)", "athletePaymentDisbursed"),
		},
	}

	teamStaking = Family{
		Name:        "teamStaking",
		Identifiers: append(variants("teamStaking", "Current", "Previous"), variants("nattyStaking", "Current", "Previous")...),
		Events: []EventSpec{
			mustSpec("StakeAdded(uint256 indexed _stakeId, address indexed _staker, uint256 indexed _collegeId, uint256 _amount, uint16 _year, bool _isNatty, bool _increase)", "teamStakeAdded"),
			mustSpec("StakeClaimed(uint256 indexed _stakeId, address indexed _staker, uint256 indexed _collegeId, uint256 _amount, uint16 _year, bool _isNatty)", "teamStakeClaimed"),
			mustSpec("StakingTimeSet(uint256 _stakingOpens, uint256 _stakingCloses, uint256 _claimableTs, uint16 _year, bool _isNatty)", "teamStakeTimeSet"),
		},
	}

	collectibleFaucet = Family{
		Name:        "collectibleSeriesFaucet",
		Identifiers: variants("collectibleSeriesFaucet", "Football", "Basketball"),
		Events: []EventSpec{
			mustSpec("AccessCreditsAddress(uint16 _year, bool _isFootball, address _accessCreditsAddress)", "accessCreditsAddress"),
			mustSpec("AthletePriceSet(uint256 _athleteId, uint16 _year, uint256 _price)", "athletePriceSet"),
			mustSpec("CollectibleFaucetTimeSet(uint256 _open, uint256 _freeAgency, uint256 _close, uint16 _year, bool _isFootball)", "collectibleFaucetTimeSet"),
			mustSpec("LevelAdded(uint256 _level, uint256 _levelEnds, uint256 _qtyAllowed, uint256 _increasePercentage, uint16 _year, bool _isFootball)", "faucetLevelAdded"),
			mustSpec("CollectibleFaucetSale(uint256 _saleId, uint256 _athleteId, address _buyer, uint256 _qty, uint256 _totalCost, uint16 _year, bool _isFootball)", "faucetSale"),
		},
	}

	burnAuction = Family{
		Name:        "collegeBurnAuction",
		Identifiers: variants("collegeBurnAuction", "Football", "Basketball"),
		Events: []EventSpec{
			mustSpec("BurnBidIncreased(uint256 indexed _bidId, address indexed _bidder, uint256 indexed _tokenId, uint256 _increasedAmount, uint256 _totalBid, uint16 _year, bool _isFootball)", "burnBidIncreased"),
			mustSpec("BurnBidPlaced(uint256 indexed _bidId, address indexed _bidder, uint256 indexed _tokenId, uint256 _bidAmount, uint256 _bidCount, uint16 _year, bool _isFootball)", "burnBidPlaced"),
			mustSpec("BurnAuctionTimeSet(uint16 _year, bool _isFootball, uint256 _start, uint256 _end)", "burnAuctionTimeSet"),
			mustSpec("RemoveBid(uint256 indexed _bidId, address indexed _bidder, uint256 indexed _tokenId, uint256 _bidAmount, uint256 _year, bool _isFootball)", "removeBid"),
		},
	}

	collectibleNfts = Family{
		Name:        "collectibleSeriesNfts",
		Identifiers: []string{"collectibleSeriesNfts"},
		Events: []EventSpec{
			mustSpec("TokenUriSet(uint256 _tokenId, string _uri)", "tokenUriSet"),
		},
	}

	draftController = Family{
		Name:        "draftController",
		Identifiers: variants("draftController", "Football", "Basketball"),
		Events: []EventSpec{
			mustSpec("DraftTimeSet(uint256 _startTs, uint256 _endTs, uint256 _year, bool _isFootball)", "draftTimeSet"),
			mustSpec("DraftBidIncreased(uint256 indexed _bidId, address indexed _bidder, uint256 indexed _duration, uint256 _amountAdded, uint256 _points, uint256 _year, bool _isFootball)", "draftBidIncreased"),
			mustSpec("DraftBidPlaced(uint256 indexed _bidId, address indexed _bidder, uint256 indexed _duration, uint256 _amount, uint256 _points, uint256 _year, bool _isFootball)", "draftBidPlaced"),
			mustSpec("DraftResultsFinalized(bool _resultsFinal, uint256 _year, bool _isFootball)", "draftResultsFinalized"),
			mustSpec("ClaimingRequirementsSet(uint256 indexed _tokenId, uint256 indexed _year, bool indexed _isFootball, uint256 _amount)", "claimingRequirementsSet"),
			mustSpec("DraftPickClaimed(address indexed _claimingAddress, uint256 indexed _tokenId, uint256 indexed _draftBidId, uint256 _year, bool _isFootball)", "draftPickClaimed"),
			mustSpec("DraftStakeClaimed(uint256 _bidId, uint256 _year, address _claimingAddress, uint256 _amount, bool _isFootball)", "draftStakeClaimed"),
		},
	}

	draftPickNfts = Family{
		Name:        "draftPickNfts",
		Identifiers: variants("draftPickNfts", "Football", "Basketball"),
		Events: []EventSpec{
			mustSpec("TokenDataSet(uint256 _tokenId, uint256 _round, uint256 _slot, uint256 _startTs, string _uri, uint16 _year, bool _isFootball)", "draftPickTokenDataSet"),
		},
	}

	ringSeriesManager = Family{
		Name:        "ringSeriesManager",
		Identifiers: []string{"ringSeriesManager"},
		Events: []EventSpec{
			mustSpec("AthleteRingSeriesQtySet(uint256 indexed _athleteId, uint256 _maxQty, uint256 _athleteQty)", "athleteRingSeriesQtySet"),
			mustSpec("AthleteRingSeriesEligibilitySet(uint256 indexed _athleteId, bool _isEligible)", "athleteRingSeriesEligibilitySet"),
			mustSpec("RingSeriesYearAdded(uint256 indexed _athleteId, uint16 indexed _year)", "ringSeriesYearAdded"),
		},
	}

	proRingSeriesNft = Family{
		Name:        "proRingSeriesNft",
		Identifiers: []string{"proRingSeriesNft"},
		Events: []EventSpec{
			mustSpec("TokenUriSet(uint256 _tokenId, string _uri)", "tokenUriSet"),
		},
	}

	lpManager = Family{
		Name:        "lpManager",
		Identifiers: []string{"lpManager"},
		Events: []EventSpec{
			mustSpec("NilAddLiquidityProcedure(uint256 _id, uint256 _stableLpAmount, uint256 _nilAmountBurned)", "nilLiquidityProcedure"),
		},
	}

	nilCoinFaucet = Family{
		Name:        "nilCoinFaucet",
		Identifiers: []string{"nilCoinFaucet"},
		Events: []EventSpec{
			mustSpec("FaucetTargetPrice(uint256 _price)", "nilFaucetTargetPrice"),
			mustSpec("TokenFaucetSale(uint256 indexed _saleId, address indexed _buyer, uint256 _qty, uint256 _totalCost)", "tokenFaucetSale"),
		},
	}

	// Songbird claim managers. AA and BA claim NFTs by token id, NFTP claims an amount.
	claimManagerAA = Family{
		Name:        "claimManagerAA",
		Identifiers: []string{"claimManagerAA"},
		Events: []EventSpec{
			mustSpec("ClaimRequested(uint256 indexed claimId, address indexed claimingAddress, uint256[] tokenIds)", "aaNftClaimRequested"),
		},
	}

	claimManagerBA = Family{
		Name:        "claimManagerBA",
		Identifiers: []string{"claimManagerBA"},
		Events: []EventSpec{
			mustSpec("ClaimRequested(uint256 indexed claimId, address indexed claimingAddress, uint256[] tokenIds)", "baNftClaimRequested"),
		},
	}

	claimManagerNFTP = Family{
		Name:        "claimManagerNFTP",
		Identifiers: []string{"claimManagerNFTP"},
		Events: []EventSpec{
			mustSpec("ClaimRequested(uint256 indexed claimId, address indexed claimingAddress, uint256 amount)", "nftpClaimRequested"),
		},
	}

	erc20Transfers = Family{
		Name:   "erc20Transfers",
		Prefix: "erc20",
		Events: []EventSpec{
			mustSpec("Transfer(address indexed from, address indexed to, uint256 value)", "erc20Transfer"),
		},
	}

	erc1155Transfers = Family{
		Name:   "erc1155Transfers",
		Prefix: "erc1155",
		Events: []EventSpec{
			mustSpec("TransferSingle(address indexed operator, address indexed from, address indexed to, uint256 id, uint256 value)", "erc1155TransferSingle"),
		},
	}
)
